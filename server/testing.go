/*
	This file contains functions useful for testing the server in other packages.
	Unfortunately, due to the way Go handles compilation of *_test.go files,
	these functions cannot be in server_test.go since they will be unavailable
	to test files in external packages.  So these functions are exported and
	contain the "Test" keyword.
*/

package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/janelia-flyem/wsiview/datastore"
)

// NewTestServer returns a server over the slide directory using default settings
// and the counting test backend.
func NewTestServer(t *testing.T, dir string) *Server {
	config := DefaultConfig()
	config.Slides.Dir = dir
	config.Slides.Backend = datastore.TestBackendName
	return NewTestServerWithConfig(t, config)
}

// NewTestServerWithConfig returns a server for the configuration, closing its
// datastore when the test ends.
func NewTestServerWithConfig(t *testing.T, config *Config) *Server {
	datastore.RegisterTestBackend()
	storeConfig, err := config.StoreConfig()
	if err != nil {
		t.Fatalf("bad test configuration: %v\n", err)
	}
	store, err := datastore.New(storeConfig)
	if err != nil {
		t.Fatalf("can't open test datastore: %v\n", err)
	}
	s, err := New(config, store)
	if err != nil {
		store.Close()
		t.Fatalf("can't open test server: %v\n", err)
	}
	t.Cleanup(store.Close)
	return s
}

// TestHTTPResponse returns a response from a test run of the server.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, s *Server, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// status OK.
func TestHTTP(t *testing.T, s *Server, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, s, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with the given error status code.
func TestBadHTTP(t *testing.T, s *Server, method, urlStr string, status int) {
	resp := TestHTTPResponse(t, s, method, urlStr, nil)
	if resp.Code != status {
		t.Errorf("Expected status %d to %s on %q, got %d instead.\n", status, method, urlStr, resp.Code)
	}
}
