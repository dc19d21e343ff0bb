package network

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"binwatch/internal/types"
)

const (
	nmcli = "nmcli"

	// DefaultMaxAttempts and DefaultRetryDelay bound association to about ten
	// seconds.
	DefaultMaxAttempts = 20
	DefaultRetryDelay  = 500 * time.Millisecond
)

var errNotAssociated = errors.New("not associated yet")

// WiFiConfig configures a NetworkManager-backed Connector.
type WiFiConfig struct {
	SSID     string
	Password types.SecretString
	// Interface optionally pins the wireless device (e.g. wlan0).
	Interface   string
	MaxAttempts int
	RetryDelay  time.Duration
	Runner      Runner
	Logger      *slog.Logger
}

// WiFi associates with a network through nmcli.
type WiFi struct {
	ssid        string
	password    types.SecretString
	iface       string
	maxAttempts int
	retryDelay  time.Duration
	runner      Runner
	logger      *slog.Logger
}

// NewWiFi creates a WiFi connector. Zero values fall back to the defaults.
func NewWiFi(cfg WiFiConfig) *WiFi {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WiFi{
		ssid:        cfg.SSID,
		password:    cfg.Password,
		iface:       cfg.Interface,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		runner:      cfg.Runner,
		logger:      cfg.Logger,
	}
}

// Connected reports whether NetworkManager considers the host online.
func (w *WiFi) Connected(ctx context.Context) bool {
	out, err := w.runner.Run(ctx, nmcli, "-t", "-f", "STATE", "general")
	if err != nil {
		w.logger.DebugContext(ctx, "nmcli status failed", "error", err, "output", strings.TrimSpace(string(out)))
		return false
	}
	return strings.TrimSpace(string(out)) == "connected"
}

// EnsureConnected requests association with the configured SSID and polls
// the link state up to MaxAttempts times, RetryDelay apart.
func (w *WiFi) EnsureConnected(ctx context.Context) error {
	if w.Connected(ctx) {
		return nil
	}

	w.logger.InfoContext(ctx, "connecting to wifi", "ssid", w.ssid, "interface", w.iface)

	args := []string{"device", "wifi", "connect", w.ssid}
	if w.password.IsSet() {
		args = append(args, "password", w.password.Unmask())
	}
	if w.iface != "" {
		args = append(args, "ifname", w.iface)
	}
	if out, err := w.runner.Run(ctx, nmcli, args...); err != nil {
		// The request can fail while the link still comes up on its own.
		w.logger.WarnContext(ctx, "wifi connect request failed",
			"ssid", w.ssid,
			"error", err,
			"output", strings.TrimSpace(string(out)),
		)
	}

	attempt := 0
	op := func() error {
		attempt++
		if w.Connected(ctx) {
			return nil
		}
		w.logger.DebugContext(ctx, "waiting for wifi association", "attempt", attempt, "max_attempts", w.maxAttempts)
		return errNotAssociated
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.retryDelay), uint64(w.maxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(op, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.logger.ErrorContext(ctx, "wifi connection failed", "ssid", w.ssid, "attempts", attempt)
		return types.NewAppErrorWithDetails(
			types.ErrCodeNetworkAssociationFailed,
			"wifi association failed",
			err,
			map[string]any{"ssid": w.ssid, "attempts": attempt},
		)
	}

	w.logger.InfoContext(ctx, "wifi connected", "ssid", w.ssid, "attempts", attempt, "address", w.Address(ctx))
	return nil
}

// Address returns the IPv4 address of the configured interface, or "" when
// no interface is pinned or the query fails.
func (w *WiFi) Address(ctx context.Context) string {
	if w.iface == "" {
		return ""
	}
	out, err := w.runner.Run(ctx, nmcli, "-g", "IP4.ADDRESS", "device", "show", w.iface)
	if err != nil {
		return ""
	}
	addr, _, _ := strings.Cut(strings.TrimSpace(string(out)), "|")
	return strings.TrimSpace(addr)
}
