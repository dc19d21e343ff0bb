// Package sensor turns ultrasonic echo timings into distance readings.
//
// A Sampler fires one measurement per call, converts the echo width with the
// speed of sound, and rejects timeouts and readings outside the valid band.
// There are no retries: a rejected reading is reported as ErrInvalidReading
// and the caller skips the rest of its cycle.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"binwatch/internal/types"
)

// cmPerMicrosecond is the speed of sound at room temperature (343 m/s).
const cmPerMicrosecond = 0.034

// DefaultEchoTimeout bounds one measurement; ~8.5m round trip, well past the
// module's 4m range.
const DefaultEchoTimeout = 50 * time.Millisecond

// ErrInvalidReading is returned for echo timeouts and out-of-band distances.
var ErrInvalidReading = errors.New("sensor: invalid reading")

// EchoSource fires a single trigger pulse and reports the echo pulse width.
// A zero duration means no echo arrived within timeout.
type EchoSource interface {
	Echo(ctx context.Context, timeout time.Duration) (time.Duration, error)
}

// DistanceFromEcho converts an echo pulse width to whole centimetres. The echo
// covers the round trip, so the path length is halved; the fraction is
// truncated.
func DistanceFromEcho(echo time.Duration) int {
	us := float64(echo) / float64(time.Microsecond)
	return int(us * cmPerMicrosecond / 2)
}

// EchoForDistance is the inverse of DistanceFromEcho: the shortest whole
// microsecond echo that reads as distanceCM.
func EchoForDistance(distanceCM int) time.Duration {
	if distanceCM <= 0 {
		return 0
	}
	us := int64(float64(distanceCM) * 2 / cmPerMicrosecond)
	for DistanceFromEcho(time.Duration(us)*time.Microsecond) < distanceCM {
		us++
	}
	for us > 0 && DistanceFromEcho(time.Duration(us-1)*time.Microsecond) >= distanceCM {
		us--
	}
	return time.Duration(us) * time.Microsecond
}

// Band is the range of distances the sensor can report reliably:
// (MinCM, MaxCM].
type Band struct {
	MinCM int
	MaxCM int
}

// DefaultBand matches the HC-SR04: anything at or under 2cm is the blind zone,
// anything beyond 4m is noise.
var DefaultBand = Band{MinCM: 2, MaxCM: 400}

// Contains reports whether distanceCM is a trustworthy reading.
func (b Band) Contains(distanceCM int) bool {
	return distanceCM > b.MinCM && distanceCM <= b.MaxCM
}

// SamplerConfig holds the configuration for creating a Sampler.
type SamplerConfig struct {
	Source  EchoSource
	Band    Band
	Timeout time.Duration
	Clock   types.Clock
	Logger  *slog.Logger
}

// Sampler produces one Reading per call.
type Sampler struct {
	source  EchoSource
	band    Band
	timeout time.Duration
	clock   types.Clock
	logger  *slog.Logger
}

// NewSampler creates a Sampler. Zero-valued fields fall back to DefaultBand,
// DefaultEchoTimeout, the real clock and slog.Default().
func NewSampler(cfg SamplerConfig) *Sampler {
	s := &Sampler{
		source:  cfg.Source,
		band:    cfg.Band,
		timeout: cfg.Timeout,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if s.band == (Band{}) {
		s.band = DefaultBand
	}
	if s.timeout <= 0 {
		s.timeout = DefaultEchoTimeout
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Read takes a single measurement.
//
// Invalid readings return an *types.AppError with code
// sensor_invalid_reading that wraps ErrInvalidReading; pin failures return
// sensor_hardware_failure.
func (s *Sampler) Read(ctx context.Context) (types.Reading, error) {
	echo, err := s.source.Echo(ctx, s.timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Reading{}, ctxErr
		}
		return types.Reading{}, types.NewAppError(
			types.ErrCodeSensorHardwareFailure,
			"ultrasonic measurement failed",
			err,
		)
	}

	if echo <= 0 {
		return types.Reading{}, types.NewAppErrorWithDetails(
			types.ErrCodeSensorInvalidReading,
			fmt.Sprintf("no echo within %s", s.timeout),
			ErrInvalidReading,
			map[string]any{"timeout": s.timeout.String()},
		)
	}

	distance := DistanceFromEcho(echo)
	if !s.band.Contains(distance) {
		return types.Reading{}, types.NewAppErrorWithDetails(
			types.ErrCodeSensorInvalidReading,
			fmt.Sprintf("distance %dcm outside (%d, %d]", distance, s.band.MinCM, s.band.MaxCM),
			ErrInvalidReading,
			map[string]any{
				"distance_cm": distance,
				"echo_us":     echo.Microseconds(),
			},
		)
	}

	s.logger.DebugContext(ctx, "echo measured",
		"echo_us", echo.Microseconds(),
		"distance_cm", distance,
	)

	return types.Reading{
		DistanceCM: distance,
		Echo:       echo,
		TakenAt:    s.clock.Now(),
	}, nil
}
