// Package external is the boundary between binwatch and third-party HTTP
// APIs. Outbound calls go through BaseClient, which adds the common headers,
// wraps each call in a circuit breaker and maps transport failures to
// types.AppError.
package external

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"binwatch/internal/types"
)

// statusError marks a response the breaker should count as a failure while
// still handing it back to the caller.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.code)
}

// DefaultBreakerTimeout is how long an open breaker waits before probing.
const DefaultBreakerTimeout = 60 * time.Second

// BreakerSettings returns the circuit breaker settings used for an upstream.
// The breaker opens after three consecutive failures and lets one probe
// through once openTimeout has passed. Zero uses DefaultBreakerTimeout.
func BreakerSettings(name string, openTimeout time.Duration) gobreaker.Settings {
	if openTimeout <= 0 {
		openTimeout = DefaultBreakerTimeout
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}
}

// NewHTTPClient builds the *http.Client used for upstream calls. A zero
// timeout leaves requests bounded only by their context.
func NewHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		// The gateway certificate is not pinned on the device either.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// BaseClient wraps an *http.Client and a circuit breaker. Provider clients
// hold a BaseClient and build their own requests.
//
// Each Do is a single attempt. 5xx and 429 responses count against the
// breaker but are still returned so the caller can inspect the body.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBaseClient creates a BaseClient with a breaker named breakerName that
// stays open for openTimeout.
func NewBaseClient(httpClient *http.Client, breakerName string, userAgent string, openTimeout time.Duration) *BaseClient {
	return NewBaseClientWithBreaker(
		httpClient,
		gobreaker.NewCircuitBreaker[*http.Response](BreakerSettings(breakerName, openTimeout)),
		userAgent,
	)
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided
// circuit breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	userAgent string,
) *BaseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BaseClient{
		client:    httpClient,
		breaker:   breaker,
		userAgent: userAgent,
	}
}

// State returns the breaker state, for diagnostics.
func (c *BaseClient) State() gobreaker.State {
	return c.breaker.State()
}

// Do executes req once.
//
// It sets X-Request-Id from the context and the configured User-Agent. Any
// HTTP response is returned as-is and the caller must close its body. Errors
// are *types.AppError: upstream_unavailable for transport failures and an
// open breaker.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if id := types.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, &statusError{code: r.StatusCode}
		}
		return r, nil
	})

	var se *statusError
	if errors.As(err, &se) && resp != nil {
		return resp, nil
	}
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp, nil
}

// mapError translates transport-level failures into AppErrors.
func (c *BaseClient) mapError(err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		"upstream request failed",
		err,
	)
}
