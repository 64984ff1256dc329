package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStylizeClient(t *testing.T, server *httptest.Server) *StylizeClient {
	t.Helper()
	return &StylizeClient{
		httpClient:   server.Client(),
		baseURL:      server.URL,
		apiKey:       "test-key",
		pollInterval: 5 * time.Millisecond,
		pollTimeout:  time.Second,
	}
}

func TestStylizeGenerateCompletesAfterPolling(t *testing.T) {
	var polls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/items/images/":
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected authorization header %q", got)
			}
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			if !strings.Contains(payload["prompt"], "please make cute.") {
				t.Errorf("prompt missing style preset text: %q", payload["prompt"])
			}
			if !strings.Contains(payload["prompt"], "https://cdn.example.com/raw.png") {
				t.Errorf("prompt missing raw image URL: %q", payload["prompt"])
			}
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-1"}})
		case r.Method == http.MethodGet && r.URL.Path == "/items/images/job-1":
			n := atomic.AddInt32(&polls, 1)
			status := "in-progress"
			var urls []string
			if n >= 3 {
				status = "completed"
				urls = []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"}
			}
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"id": "job-1", "status": status, "upscaled_urls": urls,
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)

	urls, err := client.Generate(context.Background(), 1, "https://cdn.example.com/raw.png")
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"}, urls)
	require.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestStylizeGenerateRejectsBadInput(t *testing.T) {
	client := &StylizeClient{pollInterval: time.Millisecond, pollTimeout: time.Second}

	_, err := client.Generate(context.Background(), 99, "https://cdn.example.com/raw.png")
	require.ErrorIs(t, err, ErrUnknownStylePreset)

	_, err = client.Generate(context.Background(), 1, "   ")
	require.ErrorIs(t, err, ErrMissingRawImage)
}

func TestStylizeGenerateFailedJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-2"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-2", "status": "failed"}})
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)

	_, err := client.Generate(context.Background(), 2, "https://cdn.example.com/raw.png")
	require.ErrorIs(t, err, ErrUpstreamGeneration)
}

func TestStylizeGenerateCompletedWithoutURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-3"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-3", "status": "completed"}})
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)

	_, err := client.Generate(context.Background(), 1, "https://cdn.example.com/raw.png")
	require.ErrorIs(t, err, ErrUpstreamProtocol)
}

func TestStylizeGenerateMissingJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)

	_, err := client.Generate(context.Background(), 1, "https://cdn.example.com/raw.png")
	require.ErrorIs(t, err, ErrUpstreamProtocol)
}

func TestStylizeGeneratePollDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-4"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-4", "status": "in-progress"}})
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)
	client.pollTimeout = 30 * time.Millisecond

	_, err := client.Generate(context.Background(), 1, "https://cdn.example.com/raw.png")
	require.ErrorIs(t, err, ErrPollTimeout)
}

func TestStylizeGenerateHonorsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-5"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "job-5", "status": "in-progress"}})
	}))
	defer server.Close()

	client := newTestStylizeClient(t, server)
	client.pollTimeout = time.Minute
	client.pollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Generate(ctx, 1, "https://cdn.example.com/raw.png")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
