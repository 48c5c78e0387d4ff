package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHTTPCatalog_GetPart(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/parts/p1":
			w.Write([]byte(`{"data":{"partId":"p1","title":"Oil filter","cost":"4.20","price":"9.90","status":"active"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL+"/", srv.Client(), time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	part, err := c.GetPart(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPart failed: %v", err)
	}
	if part == nil || part.Name != "Oil filter" || !part.Active {
		t.Fatalf("unexpected part: %+v", part)
	}

	// second lookup is served from cache
	if _, err := c.GetPart(ctx, "p1"); err != nil {
		t.Fatalf("GetPart failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls.Load())
	}

	missing, err := c.GetPart(ctx, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown part, got %+v", missing)
	}
}

func TestHTTPCatalog_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL, srv.Client(), time.Minute, zaptest.NewLogger(t))
	if _, err := c.GetPart(context.Background(), "p1"); err == nil {
		t.Error("expected error on upstream failure")
	}
}
