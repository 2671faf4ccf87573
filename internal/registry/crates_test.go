package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0nserv/cargo-edit-locally/internal/netretry"
)

func testPolicy() netretry.Policy {
	return netretry.Policy{Retries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestClient_Lookup(t *testing.T) {
	// Arrange: mock crates.io API
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crates/log":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"crate":{"name":"log","max_version":"0.4.20","repository":"https://github.com/rust-lang/log"},"versions":[]}`))
		case "/crates/norepo":
			w.Write([]byte(`{"crate":{"name":"norepo","repository":null}}`))
		case "/crates/garbled":
			w.Write([]byte(`{"crate":`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testPolicy())

	tests := []struct {
		name     string
		crate    string
		wantRepo string
		wantErr  bool
	}{
		{name: "with repository", crate: "log", wantRepo: "https://github.com/rust-lang/log"},
		{name: "null repository", crate: "norepo", wantRepo: ""},
		{name: "not found", crate: "missing", wantErr: true},
		{name: "bad json", crate: "garbled", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			crate, err := client.Lookup(context.Background(), tt.crate)

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepo, crate.Repository)
		})
	}
}

func TestClient_LookupSendsHeaders(t *testing.T) {
	var agent, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{"crate":{"name":"log"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "tester/1.0", testPolicy()).Lookup(context.Background(), "log")

	require.NoError(t, err)
	assert.Equal(t, "tester/1.0", agent)
	assert.Equal(t, "application/json", accept)
}

func TestClient_LookupRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"crate":{"name":"log","repository":"https://github.com/rust-lang/log"}}`))
	}))
	defer server.Close()

	crate, err := NewClient(server.URL, "", testPolicy()).Lookup(context.Background(), "log")

	require.NoError(t, err)
	assert.Equal(t, "https://github.com/rust-lang/log", crate.Repository)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_LookupDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", testPolicy()).Lookup(context.Background(), "log")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "failed to get 200, got 403")
}

func TestClient_LookupExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", testPolicy()).Lookup(context.Background(), "log")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", "", netretry.NewPolicy(0))
	assert.Equal(t, DefaultAPI, c.apiURL)
	assert.Equal(t, DefaultUserAgent, c.userAgent)
}
