package httpcache

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemory(time.Hour, discard)

	if _, found := c.Get("https://example.com/a"); found {
		t.Error("fresh cache should miss")
	}

	if err := c.Set("https://example.com/a", []byte("payload")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, found := c.Get("https://example.com/a")
	if !found || string(data) != "payload" {
		t.Errorf("Get = %q found=%v, want cached payload", data, found)
	}
}

func TestAPICallKeyedByBody(t *testing.T) {
	c := NewMemory(time.Hour, discard)

	if err := c.SetAPICall("parse", []byte("body-1"), []byte("resp-1")); err != nil {
		t.Fatalf("SetAPICall: %v", err)
	}

	if _, found := c.APICall("parse", []byte("body-2")); found {
		t.Error("different request body should miss")
	}
	data, found := c.APICall("parse", []byte("body-1"))
	if !found || string(data) != "resp-1" {
		t.Errorf("APICall = %q found=%v, want cached response", data, found)
	}
}

func TestDiskPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := New(ctx, dir, time.Hour, discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Set("https://example.com/a", []byte("persisted")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(ctx, dir, time.Hour, discard)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	data, found := reopened.Get("https://example.com/a")
	if !found || string(data) != "persisted" {
		t.Errorf("Get after reload = %q found=%v, want persisted entry", data, found)
	}
}

func TestCachedClientServesFromCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	client := NewCachedClient(NewMemory(time.Hour, discard), http.DefaultClient, discard)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != "fresh" {
			t.Errorf("body = %q, want fresh", body)
		}
	}

	if hits != 1 {
		t.Errorf("upstream hit %d times, want 1 (rest from cache)", hits)
	}
}
