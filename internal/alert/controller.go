package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"binwatch/internal/types"
)

// DefaultThreshold is the fill percentage at which the bin counts as full.
const DefaultThreshold = 80

// Output is a binary indicator such as an LED.
type Output interface {
	Set(on bool) error
	Level() bool
}

// Notifier sends the "bin full" notification for a fill percentage.
type Notifier interface {
	Notify(ctx context.Context, fill int) error
}

// ControllerConfig holds the dependencies of a Controller.
type ControllerConfig struct {
	Threshold int
	// Normal is lit while the bin is below threshold (green).
	Normal Output
	// Full is lit while the bin is at or above threshold (red).
	Full     Output
	Notifier Notifier
	Logger   *slog.Logger
}

// Transition describes what one Apply call did.
type Transition struct {
	From      types.BinState
	To        types.BinState
	Fill      int
	AlertSent bool
	// Notified is true when a notification was attempted in this cycle.
	Notified  bool
	NotifyErr error
}

// Changed reports whether the bin state changed.
func (t Transition) Changed() bool { return t.From != t.To }

// Controller owns the alert snapshot and applies Decide to the outside world.
// It is driven by a single loop; the mutex only guards Snapshot readers.
type Controller struct {
	threshold int
	normal    Output
	full      Output
	notifier  Notifier
	logger    *slog.Logger

	mu    sync.Mutex
	state Snapshot
}

// NewController creates a Controller in the initial NORMAL state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		threshold: cfg.Threshold,
		normal:    cfg.Normal,
		full:      cfg.Full,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		state:     Initial(),
	}
}

// Init shows the NORMAL indicator pattern before the first cycle.
func (c *Controller) Init(ctx context.Context) error {
	return c.drive(ctx, types.BinStateNormal)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Threshold returns the configured threshold percentage.
func (c *Controller) Threshold() int { return c.threshold }

// Apply feeds one fill percentage into the state machine.
//
// The indicators are rewritten on every call. A notification is attempted at
// most once per episode and never retried; its failure is reported in the
// Transition, not as an error. The returned error only covers indicator
// writes, which do not stop the state from advancing.
func (c *Controller) Apply(ctx context.Context, fill int) (Transition, error) {
	c.mu.Lock()
	prev := c.state
	next, notify := Decide(prev, fill, c.threshold)
	c.state = next
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "threshold check",
		"fill_percent", fill,
		"threshold", c.threshold,
		"full", fill >= c.threshold,
	)

	t := Transition{From: prev.State, To: next.State, Fill: fill, AlertSent: next.AlertSent}
	if t.Changed() {
		c.logger.InfoContext(ctx, "bin state changed",
			"from", t.From,
			"to", t.To,
			"fill_percent", fill,
		)
	}
	if prev.AlertSent && !next.AlertSent {
		c.logger.InfoContext(ctx, "alert flag reset", "fill_percent", fill)
	}

	driveErr := c.drive(ctx, next.State)

	if notify {
		t.Notified = true
		if c.notifier == nil {
			t.NotifyErr = errors.New("no notifier configured")
		} else {
			t.NotifyErr = c.notifier.Notify(ctx, fill)
		}
		if t.NotifyErr != nil {
			c.logger.WarnContext(ctx, "notification failed, not retrying this episode",
				"fill_percent", fill,
				"error", t.NotifyErr,
			)
		} else {
			c.logger.InfoContext(ctx, "notification sent", "fill_percent", fill)
		}
	}

	return t, driveErr
}

// drive sets the indicator pattern for a state and logs the read-back levels.
func (c *Controller) drive(ctx context.Context, state types.BinState) error {
	full := state == types.BinStateFull

	var errs []error
	if err := set(c.full, full); err != nil {
		errs = append(errs, fmt.Errorf("full indicator: %w", err))
	}
	if err := set(c.normal, !full); err != nil {
		errs = append(errs, fmt.Errorf("normal indicator: %w", err))
	}

	c.logger.DebugContext(ctx, "indicator levels",
		"state", state,
		"normal", level(c.normal),
		"full", level(c.full),
	)

	if len(errs) > 0 {
		err := types.NewAppError(types.ErrCodeIndicatorWriteFailed, "failed to drive indicators", errors.Join(errs...))
		c.logger.ErrorContext(ctx, "indicator write failed", "state", state, "error", err)
		return err
	}
	return nil
}

func set(o Output, on bool) error {
	if o == nil {
		return nil
	}
	return o.Set(on)
}

func level(o Output) bool {
	if o == nil {
		return false
	}
	return o.Level()
}
