package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"binwatch/internal/types"
)

// newTestClient creates a BaseClient with the default breaker settings.
func newTestClient(t *testing.T) *BaseClient {
	t.Helper()
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-breaker", "binwatch-test/1.0", 0)
}

// newTrippingClient creates a BaseClient whose breaker opens after n
// consecutive failures.
func newTrippingClient(t *testing.T, n uint32) *BaseClient {
	t.Helper()
	settings := BreakerSettings("test-trip", 0)
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
	return NewBaseClientWithBreaker(
		&http.Client{Timeout: 5 * time.Second},
		gobreaker.NewCircuitBreaker[*http.Response](settings),
		"binwatch-test/1.0",
	)
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestDo_InjectsHeaders(t *testing.T) {
	var gotUA, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-Id")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t)

	ctx := types.WithRequestID(context.Background(), "req-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Body.Close()

	if gotUA != "binwatch-test/1.0" {
		t.Errorf("expected User-Agent binwatch-test/1.0, got %q", gotUA)
	}
	if gotRequestID != "req-123" {
		t.Errorf("expected X-Request-Id req-123, got %q", gotRequestID)
	}
}

func TestDo_NoRequestIDWithoutContextValue(t *testing.T) {
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["X-Request-Id"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := newTestClient(t).Do(req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Body.Close()

	if present {
		t.Error("expected no X-Request-Id header")
	}
}

func TestDo_ServerErrorIsReturnedOnceWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, nil)
	resp, err := newTestClient(t).Do(req)
	if err != nil {
		t.Fatalf("expected response, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 call, got %d", got)
	}
}

func TestDo_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTrippingClient(t, 2)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("call %d: expected response, got error: %v", i, err)
		}
		resp.Body.Close()
	}

	if client.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", client.State())
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected error with open breaker")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, code)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState in chain, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected server to see 2 calls, got %d", got)
	}
}

func TestDo_OpenBreakerProbesAfterTimeout(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test-probe", "binwatch-test/1.0", 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("call %d: expected response, got error: %v", i, err)
		}
		resp.Body.Close()
	}
	if client.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", client.State())
	}

	fail.Store(false)
	time.Sleep(100 * time.Millisecond)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected the probe to reach the server, got: %v", err)
	}
	resp.Body.Close()

	if got := calls.Load(); got != 4 {
		t.Errorf("expected server to see 4 calls, got %d", got)
	}
	if client.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker closed after successful probe, got %s", client.State())
	}
}

func TestBreakerSettings_DefaultTimeout(t *testing.T) {
	if got := BreakerSettings("x", 0).Timeout; got != DefaultBreakerTimeout {
		t.Errorf("expected %v, got %v", DefaultBreakerTimeout, got)
	}
	if got := BreakerSettings("x", 5*time.Second).Timeout; got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}
}

func TestDo_ClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTrippingClient(t, 1)

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		resp.Body.Close()
	}

	if client.State() != gobreaker.StateClosed {
		t.Errorf("expected breaker closed, got %s", client.State())
	}
}

func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	_, err := newTestClient(t).Do(req)
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, code)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := newTestClient(t).Do(req)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(3*time.Second, true)
	if c.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification disabled")
	}

	c = NewHTTPClient(0, false)
	tr = c.Transport.(*http.Transport)
	if tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification enabled")
	}
}

func TestNewHTTPClient_InsecureAcceptsSelfSigned(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewHTTPClient(5*time.Second, true).Get(server.URL)
	if err != nil {
		t.Fatalf("expected self-signed certificate to be accepted, got %v", err)
	}
	resp.Body.Close()

	if _, err := NewHTTPClient(5*time.Second, false).Get(server.URL); err == nil {
		t.Error("expected certificate verification failure")
	}
}
