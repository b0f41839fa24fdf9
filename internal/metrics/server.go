package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewServer builds the metrics HTTP server with /metrics and /health routes
func NewServer(port int, exporter *Exporter) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", exporter).Methods("GET")

	// Liveness probe
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	}).Methods("GET")

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
}
