package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestReplicateProvider_ImmediateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/acme/painter/predictions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Errorf("Missing bearer token")
		}
		if r.Header.Get("Prefer") != "wait" {
			t.Errorf("Expected Prefer: wait header")
		}
		var body replicateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if body.Input["prompt"] != "a castle" {
			t.Errorf("Unexpected prompt %v", body.Input["prompt"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "p1", "status": "succeeded", "output": ["https://replicate.delivery/a.webp"]}`))
	}))
	defer server.Close()

	provider := NewReplicateProvider(server.URL, "token-1", "acme/painter", time.Millisecond, server.Client())
	urls, err := provider.Generate(context.Background(), Request{Prompt: "a castle"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://replicate.delivery/a.webp" {
		t.Errorf("Unexpected urls: %v", urls)
	}
}

func TestReplicateProvider_PollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/predictions":
			var body replicateRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Version != "abc123" {
				t.Errorf("Expected pinned version, got %q", body.Version)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": "p2", "status": "starting", "urls": {"get": "` + server.URL + `/v1/predictions/p2"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/predictions/p2":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"id": "p2", "status": "processing", "urls": {"get": "` + server.URL + `/v1/predictions/p2"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id": "p2", "status": "succeeded", "output": "https://replicate.delivery/b.png"}`))
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := NewReplicateProvider(server.URL, "t", "acme/painter:abc123", time.Millisecond, server.Client())
	urls, err := provider.Generate(context.Background(), Request{Prompt: "a forest"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://replicate.delivery/b.png" {
		t.Errorf("Unexpected urls: %v", urls)
	}
	if polls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", polls.Load())
	}
}

func TestReplicateProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"nsfw failure", http.StatusCreated, `{"id": "p", "status": "failed", "error": "NSFW content detected. Try a different prompt."}`, ErrContentRejected},
		{"generic failure", http.StatusCreated, `{"id": "p", "status": "failed", "error": "CUDA out of memory"}`, ErrUpstreamUnavailable},
		{"canceled", http.StatusCreated, `{"id": "p", "status": "canceled"}`, ErrUpstreamUnavailable},
		{"billing", http.StatusPaymentRequired, `{"detail": "You have insufficient credit"}`, ErrInsufficientProviderCredit},
		{"unauthorized", http.StatusUnauthorized, `{"detail": "Invalid token"}`, ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider := NewReplicateProvider(server.URL, "t", "acme/painter", time.Millisecond, server.Client())
			_, err := provider.Generate(context.Background(), Request{Prompt: "x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReplicateProvider_ContextDeadline(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "p3", "status": "processing", "urls": {"get": "` + server.URL + `/v1/predictions/p3"}}`))
	}))
	defer server.Close()

	provider := NewReplicateProvider(server.URL, "t", "acme/painter", 5*time.Millisecond, server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.Generate(ctx, Request{Prompt: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}
