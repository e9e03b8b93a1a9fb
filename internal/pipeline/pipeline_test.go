package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServeHTTPHealthIsUnauthenticated(t *testing.T) {
	p := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("GET /health body = %q, want empty", rec.Body.String())
	}
}

func TestServeHTTPSetsCORSHeaders(t *testing.T) {
	p := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, HEAD" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestServeHTTPUnrecognizedRouteIsInvalidRequest(t *testing.T) {
	p := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("GET / = %d, want 400", rec.Code)
	}
}

func TestServeHTTPObjectRouteWithoutAuthHeadersIsInvalidRequest(t *testing.T) {
	p := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/acme/photos/img.tif", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("GET /acme/photos/img.tif (unauthenticated) = %d, want 400", rec.Code)
	}
}

func TestServeHTTPEmptyObjectKeyIsInvalidRequest(t *testing.T) {
	p := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/acme/photos/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("GET /acme/photos/ = %d, want 400", rec.Code)
	}
}
