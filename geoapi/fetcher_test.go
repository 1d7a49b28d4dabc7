package geoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mapreason/mapreason/core"
)

func fastFetchConfig() *core.Config {
	config := core.DefaultConfig()
	config.FetchMaxAttempts = 3
	config.RetryInitialDelay = time.Millisecond
	config.RetryMaxDelay = 5 * time.Millisecond
	config.FetchTimeout = time.Second
	return config
}

func TestFetchOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": [{"ward_name": "Northfield", "concentration": 55.2}]}`))
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "properties", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	if len(resp.Records) != 1 || resp.Records[0]["ward_name"] != "Northfield" {
		t.Errorf("unexpected records %v", resp.Records)
	}
}

func TestFetchBareArrayPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name": "Riverside"}]`))
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "wards", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != StatusOK || len(resp.Records) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestFetchEmptyIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"records": []}`))
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "properties", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != StatusEmpty {
		t.Errorf("expected empty status, got %s", resp.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("empty response fetched %d times, want exactly 1", got)
	}
}

func TestFetchNotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "properties", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != StatusEmpty {
		t.Errorf("expected empty status for 404, got %s", resp.Status)
	}
}

func TestFetchServerErrorRetriesToBound(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "properties", URL: server.URL})
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if resp.Status != StatusError {
		t.Errorf("expected error status, got %s", resp.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want exactly 3", got)
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"name": "Riverside"}]`))
	}))
	defer server.Close()

	f := NewFetcher(fastFetchConfig())
	resp, err := f.Fetch(context.Background(), &APIRequest{Table: "wards", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("expected ok status after recovery, got %s", resp.Status)
	}
}
