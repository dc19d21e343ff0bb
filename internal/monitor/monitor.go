// Package monitor runs the sense, compute and act loop.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"binwatch/internal/alert"
	"binwatch/internal/fill"
	"binwatch/internal/metrics"
	"binwatch/internal/network"
	"binwatch/internal/sensor"
	"binwatch/internal/telemetry"
	"binwatch/internal/types"
)

const (
	// DefaultInterval is the time between cycles.
	DefaultInterval = 5 * time.Second
	// DefaultTick is how often the gate is checked.
	DefaultTick = 50 * time.Millisecond
)

// Reader takes one distance measurement.
type Reader interface {
	Read(ctx context.Context) (types.Reading, error)
}

// Config holds the dependencies of a Monitor.
type Config struct {
	Interval   time.Duration
	Tick       time.Duration
	Sensor     Reader
	Estimator  fill.Estimator
	Controller *alert.Controller
	Connector  network.Connector
	Recorder   metrics.Recorder
	Publisher  telemetry.Publisher
	Clock      types.Clock
	Logger     *slog.Logger
}

// Monitor owns the polling loop. It is single-threaded: Run calls RunCycle
// from one goroutine only.
type Monitor struct {
	interval   time.Duration
	tick       time.Duration
	sensor     Reader
	estimator  fill.Estimator
	controller *alert.Controller
	connector  network.Connector
	recorder   metrics.Recorder
	publisher  telemetry.Publisher
	clock      types.Clock
	logger     *slog.Logger
}

// New creates a Monitor. Sensor and Controller are required; the rest fall
// back to no-op or default implementations.
func New(cfg Config) *Monitor {
	m := &Monitor{
		interval:   cfg.Interval,
		tick:       cfg.Tick,
		sensor:     cfg.Sensor,
		estimator:  cfg.Estimator,
		controller: cfg.Controller,
		connector:  cfg.Connector,
		recorder:   cfg.Recorder,
		publisher:  cfg.Publisher,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.tick <= 0 || m.tick > m.interval {
		m.tick = min(DefaultTick, m.interval)
	}
	if m.connector == nil {
		m.connector = network.Always{}
	}
	if m.recorder == nil {
		m.recorder = metrics.NoopRecorder{}
	}
	if m.publisher == nil {
		m.publisher = telemetry.Nop{}
	}
	if m.clock == nil {
		m.clock = types.RealClock{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Run drives the indicators to NORMAL, tries to connect, then runs a cycle
// every interval until ctx is cancelled. Setup failures are logged, not
// fatal: the bin keeps being measured while offline.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.controller.Init(ctx); err != nil {
		m.logger.ErrorContext(ctx, "indicator init failed", "error", err)
	}
	if err := m.connector.EnsureConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		m.logger.WarnContext(ctx, "starting without network", "error", err)
	}

	gate := NewGate(m.interval, m.clock.Now())
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "monitor started", "interval", m.interval, "threshold", m.controller.Threshold())

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "monitor stopped")
			return nil
		case <-ticker.C:
			if gate.Due(m.clock.Now()) {
				m.RunCycle(ctx)
			}
		}
	}
}

// RunCycle performs one measurement and acts on it. An invalid reading
// leaves the alert state and the indicators untouched.
func (m *Monitor) RunCycle(ctx context.Context) types.CycleReport {
	start := m.clock.Now()
	cycleID := uuid.NewString()
	ctx = types.WithCycleID(ctx, cycleID)
	logger := m.logger.With("cycle_id", cycleID)

	snap := m.controller.Snapshot()
	report := types.CycleReport{
		CycleID:   cycleID,
		Time:      start,
		State:     snap.State,
		Fill:      snap.Fill,
		AlertSent: snap.AlertSent,
	}

	reading, err := m.sensor.Read(ctx)
	if err != nil {
		report.Error = err.Error()
		m.recorder.ObserveInvalid()
		if errors.Is(err, sensor.ErrInvalidReading) {
			logger.WarnContext(ctx, "invalid sensor reading, skipping", "error", err)
		} else {
			logger.ErrorContext(ctx, "sensor read failed, skipping", "error", err, "code", types.CodeOf(err))
		}
		m.finish(ctx, logger, start, report)
		return report
	}

	fs := m.estimator.Estimate(reading)
	logger.InfoContext(ctx, "bin measured", "distance_cm", fs.DistanceCM, "fill_percent", fs.Percent)

	tr, err := m.controller.Apply(ctx, fs.Percent)
	if err != nil {
		report.Error = err.Error()
	}

	report.Valid = true
	report.DistanceCM = fs.DistanceCM
	report.Fill = fs.Percent
	report.State = tr.To
	report.Changed = tr.Changed()
	report.AlertSent = tr.AlertSent
	report.Notified = tr.Notified
	if tr.NotifyErr != nil {
		report.NotifyErr = tr.NotifyErr.Error()
	}

	m.recorder.ObserveReading(fs.DistanceCM, fs.Percent)
	m.recorder.ObserveState(tr.To)
	if tr.Notified {
		m.recorder.ObserveNotification(tr.NotifyErr)
	}

	m.finish(ctx, logger, start, report)
	return report
}

// finish exports the cycle. Export failures never affect the loop.
func (m *Monitor) finish(ctx context.Context, logger *slog.Logger, start time.Time, report types.CycleReport) {
	m.recorder.ObserveCycleDuration(m.clock.Now().Sub(start))
	if err := m.recorder.Flush(ctx); err != nil {
		logger.WarnContext(ctx, "metrics flush failed", "error", err)
	}
	if err := m.publisher.Publish(ctx, report); err != nil {
		logger.WarnContext(ctx, "telemetry publish failed", "error", err)
	}
}
