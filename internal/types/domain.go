package types

import "time"

// Reading is a single ultrasonic distance measurement.
// Only valid readings leave the sensor package; invalid ones are reported as
// errors and never reach the estimator.
type Reading struct {
	DistanceCM int           `json:"distance_cm"`
	Echo       time.Duration `json:"echo"`
	TakenAt    time.Time     `json:"taken_at"`
}

// FillState is the fill percentage derived from the latest valid Reading.
type FillState struct {
	Percent    int `json:"percent"`
	DistanceCM int `json:"distance_cm"`
}

// BinState is the indicator state of the bin.
type BinState string

const (
	BinStateNormal BinState = "NORMAL"
	BinStateFull   BinState = "FULL"
)

// CycleReport summarizes one monitor cycle. It is what the diagnostic log,
// the metrics recorder and the telemetry publisher observe.
type CycleReport struct {
	CycleID    string    `json:"cycle_id"`
	Time       time.Time `json:"time"`
	Valid      bool      `json:"valid"`
	DistanceCM int       `json:"distance_cm,omitempty"`
	Fill       int       `json:"fill_percent"`
	State      BinState  `json:"state"`
	Changed    bool      `json:"changed"`
	AlertSent  bool      `json:"alert_sent"`
	Notified   bool      `json:"notified"`
	NotifyErr  string    `json:"notify_error,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Metric and label names shared by the metrics recorder and its tests.
const (
	MetricNamespace = "binwatch"

	MetricDistanceCM    = "distance_cm"
	MetricFillPercent   = "fill_percent"
	MetricFull          = "full"
	MetricReadings      = "readings_total"
	MetricNotifications = "notifications_total"
	MetricCycleDuration = "cycle_duration_seconds"
	LabelResult         = "result"
	ResultValid         = "valid"
	ResultInvalid       = "invalid"
	ResultSuccess       = "success"
	ResultFailed        = "failed"
)
