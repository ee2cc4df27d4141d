package httpserver_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"certgate/internal/platform/httpserver"
)

func TestNew_DerivesDeadlinesFromRequestTimeout(t *testing.T) {
	srv := httpserver.New(":8443", http.NewServeMux(), 10*time.Second)

	assert.Equal(t, ":8443", srv.Addr)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	// write deadline outlives the request timeout so the handler's own
	// timeout response still reaches the client
	assert.Greater(t, srv.WriteTimeout, srv.ReadTimeout)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	assert.NotZero(t, srv.IdleTimeout)
}

func TestNew_DefaultsNonPositiveTimeout(t *testing.T) {
	srv := httpserver.New(":8443", http.NewServeMux(), 0)

	assert.Equal(t, 30*time.Second, srv.ReadTimeout)
}
