package grid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// validBatchJSON returns the JSON encoding of testBatch.
func validBatchJSON(t *testing.T) []byte {
	t.Helper()
	data, err := EncodeBatch(testBatch(), CompressionNone)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	return data
}

func TestFetchBatchFromAPI_Success(t *testing.T) {
	body := validBatchJSON(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	b, err := FetchBatchFromAPI(context.Background(), srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("FetchBatchFromAPI() error: %v", err)
	}
	if b.ID != "b-1" || len(b.Groups) != 3 {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestFetchBatchFromAPI_Compressed(t *testing.T) {
	body, err := EncodeBatch(testBatch(), CompressionGzip)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	b, err := FetchBatchFromAPI(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchBatchFromAPI() error: %v", err)
	}
	if b.Source != "scanner" {
		t.Errorf("Source = %q, want scanner", b.Source)
	}
}

func TestFetchBatchFromAPI_EmptyURL(t *testing.T) {
	_, err := FetchBatchFromAPI(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
	if !strings.Contains(err.Error(), "API URL is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetchBatchFromAPI_RetriesThenSucceeds(t *testing.T) {
	body := validBatchJSON(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	_, err := FetchBatchFromAPI(context.Background(), srv.URL,
		WithMaxRetries(3), WithBaseBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("FetchBatchFromAPI() error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchBatchFromAPI_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FetchBatchFromAPI(context.Background(), srv.URL,
		WithMaxRetries(2), WithBaseBackoff(time.Millisecond), WithTimeout(time.Second))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "all 2 attempts failed") || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchBatchFromAPI_DecodeErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("definitely not a batch"))
	}))
	defer srv.Close()

	_, err := FetchBatchFromAPI(context.Background(), srv.URL, WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchBatchFromAPI_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchBatchFromAPI(ctx, srv.URL, WithBaseBackoff(time.Hour))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
