// Package notify sends the "bin full" SMS when the alert controller asks for
// it.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"binwatch/internal/external"
	"binwatch/internal/network"
	"binwatch/internal/types"
)

// ErrNotConnected is returned when a notification is due while the host is
// offline. The notification is dropped; a reconnect is started in the
// background.
var ErrNotConnected = errors.New("network not connected")

// Sender delivers a templated SMS.
type Sender interface {
	Send(ctx context.Context, recipient string, vars external.TemplateVars) (*external.SendResult, error)
}

// Config holds the dependencies of a Notifier.
type Config struct {
	Recipient string
	// Label is the fixed first template variable, e.g. the bin's name.
	Label     string
	Sender    Sender
	Connector network.Connector
	Logger    *slog.Logger
}

// Notifier implements alert.Notifier on top of an SMS Sender.
type Notifier struct {
	recipient string
	label     string
	sender    Sender
	connector network.Connector
	logger    *slog.Logger

	reconnecting atomic.Bool
	wg           sync.WaitGroup
}

// New creates a Notifier. A nil Connector means always connected.
func New(cfg Config) *Notifier {
	if cfg.Connector == nil {
		cfg.Connector = network.Always{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Notifier{
		recipient: cfg.Recipient,
		label:     cfg.Label,
		sender:    cfg.Sender,
		connector: cfg.Connector,
		logger:    cfg.Logger,
	}
}

// Notify makes exactly one delivery attempt for fill. It never retries.
func (n *Notifier) Notify(ctx context.Context, fill int) error {
	ctx = types.WithRequestID(ctx, uuid.NewString())
	logger := n.logger.With(
		"request_id", types.GetRequestID(ctx),
		"cycle_id", types.GetCycleID(ctx),
		"fill_percent", fill,
	)

	if !n.connector.Connected(ctx) {
		logger.WarnContext(ctx, "network not connected, cannot send sms")
		n.reconnect(ctx)
		return types.NewAppError(types.ErrCodeNetworkNotConnected, "sms skipped while offline", ErrNotConnected)
	}

	res, err := n.sender.Send(ctx, n.recipient, external.TemplateVars{
		Var1: n.label,
		Var2: strconv.Itoa(fill),
	})
	if err != nil {
		logger.ErrorContext(ctx, "sms notification failed", "error", err, "transient", types.CodeOf(err).Transient())
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return appErr.WithDetails(map[string]any{
				"request_id":   types.GetRequestID(ctx),
				"cycle_id":     types.GetCycleID(ctx),
				"fill_percent": fill,
			})
		}
		return err
	}

	logger.InfoContext(ctx, "sms notification sent", "status", res.StatusCode)
	return nil
}

// reconnect starts one background EnsureConnected unless one is already
// running.
func (n *Notifier) reconnect(ctx context.Context) {
	if !n.reconnecting.CompareAndSwap(false, true) {
		n.logger.DebugContext(ctx, "reconnect already in progress")
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.reconnecting.Store(false)
		if err := n.connector.EnsureConnected(ctx); err != nil {
			n.logger.WarnContext(ctx, "background reconnect failed", "error", err)
			return
		}
		n.logger.InfoContext(ctx, "background reconnect succeeded")
	}()
}

// Wait blocks until any background reconnect has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
