package httpserver

import (
	"net/http"
	"time"
)

// Batch ingestion requests can carry thousands of records, so the write
// timeout stays generous while header reads are bounded tightly.
const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 90 * time.Second
)

// New builds the API server with timeouts tuned for batch ingestion.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
