package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simswarm/simswarm/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.ERROR, false)
}

func TestEnsureDownloadsMissingBinary(t *testing.T) {
	payload := []byte("#!/bin/sh\necho simulator\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sim")
	p := New(Config{URL: server.URL, DestPath: dest, RetryInterval: 10 * time.Millisecond}, testLogger())

	require.NoError(t, p.Ensure(context.Background()))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestEnsureSkipsExistingBinary(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("new payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sim")
	require.NoError(t, os.WriteFile(dest, []byte("existing"), 0755))

	p := New(Config{URL: server.URL, DestPath: dest}, testLogger())
	require.NoError(t, p.Ensure(context.Background()))

	assert.Equal(t, int64(0), hits.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestEnsureForceRedownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sim")
	require.NoError(t, os.WriteFile(dest, []byte("existing"), 0755))

	p := New(Config{URL: server.URL, DestPath: dest, Force: true, RetryInterval: 10 * time.Millisecond}, testLogger())
	require.NoError(t, p.Ensure(context.Background()))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new payload", string(data))
}

func TestEnsureFailsWithoutURL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "sim")
	p := New(Config{DestPath: dest}, testLogger())

	err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no download URL")
}

func TestFetchRetriesOnFixedInterval(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sim")
	p := New(Config{URL: server.URL, DestPath: dest, RetryInterval: 10 * time.Millisecond}, testLogger())

	require.NoError(t, p.Fetch(context.Background()))
	assert.Equal(t, int64(3), hits.Load())
}

func TestFetchStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "sim")
	p := New(Config{URL: server.URL, DestPath: dest, RetryInterval: 20 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Fetch(ctx)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestChecksumVerification(t *testing.T) {
	payload := []byte("simulator payload")
	digest := sha256.Sum256(payload)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	t.Run("matching digest installs", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "sim")
		p := New(Config{
			URL:           server.URL,
			DestPath:      dest,
			SHA256:        hex.EncodeToString(digest[:]),
			RetryInterval: 10 * time.Millisecond,
		}, testLogger())

		require.NoError(t, p.Fetch(context.Background()))
		assert.FileExists(t, dest)
	})

	t.Run("mismatched digest fails the attempt", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "sim")
		p := New(Config{
			URL:           server.URL,
			DestPath:      dest,
			SHA256:        "deadbeef",
			RetryInterval: 20 * time.Millisecond,
		}, testLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		require.Error(t, p.Fetch(ctx))
		assert.NoFileExists(t, dest)
	})
}
