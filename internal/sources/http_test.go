package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPABAdapter_GetAndUpdateProgress(t *testing.T) {
	var lastBody abProgressRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected bearer token header, got %q", r.Header.Get("Authorization"))
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(abProgressResponse{Seconds: 3600})
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&lastBody)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	adapter := NewHTTPABAdapter(srv.URL, "test-token", nil, nil)

	seconds, err := adapter.GetProgress(context.Background(), "ab-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if seconds != 3600 {
		t.Errorf("expected 3600, got %v", seconds)
	}

	if err := adapter.UpdateProgress(context.Background(), "ab-1", 7200); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if lastBody.Seconds != 7200 {
		t.Errorf("expected write of 7200, got %v", lastBody.Seconds)
	}
}

func TestHTTPABAdapter_ServerError_Retries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(abProgressResponse{Seconds: 42})
	}))
	defer srv.Close()

	adapter := NewHTTPABAdapter(srv.URL, "", nil, nil)
	seconds, err := adapter.GetProgress(context.Background(), "ab-1")
	if err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if seconds != 42 {
		t.Errorf("expected 42, got %v", seconds)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestHTTPABAdapter_ClientError_NoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewHTTPABAdapter(srv.URL, "", nil, nil)
	if _, err := adapter.GetProgress(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a client error, got %d", attempts)
	}
}

func TestHTTPESAdapter_GetAndUpdateProgress(t *testing.T) {
	var lastBody esProgressRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(esProgressResponse{Percentage: 0.42})
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&lastBody)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	adapter := NewHTTPESAdapter(srv.URL, "", nil, nil)

	frac, err := adapter.GetProgress(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if frac != 0.42 {
		t.Errorf("expected 0.42, got %v", frac)
	}

	if err := adapter.UpdateProgress(context.Background(), "doc-1", 0.55, "ch12#p7"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if lastBody.Percentage != 0.55 || lastBody.Locator != "ch12#p7" {
		t.Errorf("unexpected write: %+v", lastBody)
	}
}
