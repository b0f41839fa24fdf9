package main

import (
	"os"

	"github.com/simswarm/simswarm/cmd/simswarm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
