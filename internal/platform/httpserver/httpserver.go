package httpserver

import (
	"net/http"
	"time"
)

// CSR submissions are small; a client that needs longer than this to send
// headers is misbehaving.
const headerTimeout = 5 * time.Second

const idleTimeout = 2 * time.Minute

// New builds the API server. Connection deadlines are derived from the
// per-request timeout so the in-handler timeout always fires first and the
// client gets a structured error instead of a dropped connection.
func New(addr string, handler http.Handler, requestTimeout time.Duration) *http.Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: headerTimeout,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       idleTimeout,
	}
}
