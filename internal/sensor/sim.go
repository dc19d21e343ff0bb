package sensor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"binwatch/internal/types"
)

// SimulatedBin is an EchoSource for running without hardware. Waste
// accumulates at a fixed rate up to a cap; once there it stays until
// Empty is called or AutoEmpty elapses. Every DropoutEvery-th measurement
// times out, mimicking a sensor that occasionally misses its echo.
type SimulatedBin struct {
	mu sync.Mutex

	heightCM   float64
	capCM      float64
	levelCM    float64
	ratePerMin float64
	fullSince  time.Time
	autoEmpty  time.Duration
	last       time.Time
	count      int
	dropout    int
	jitterCM   float64
	rng        *rand.Rand
	clock      types.Clock
}

// SimulatedBinConfig holds the configuration for creating a SimulatedBin.
type SimulatedBinConfig struct {
	HeightCM int
	// CapCM is the level at which waste stops accumulating. Zero means the
	// bin height; a lower cap keeps a full bin within the sensor's range.
	CapCM float64
	// RatePerMin is the fill speed in centimetres of waste per minute.
	RatePerMin float64
	// AutoEmpty, when positive, empties the bin that long after it fills.
	AutoEmpty time.Duration
	// DropoutEvery makes every Nth echo time out; zero disables dropouts.
	DropoutEvery int
	// JitterCM adds uniform noise in [-JitterCM, +JitterCM].
	JitterCM float64
	Seed     uint64
	Clock    types.Clock
}

// NewSimulatedBin creates an empty simulated bin.
func NewSimulatedBin(cfg SimulatedBinConfig) *SimulatedBin {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	height := float64(cfg.HeightCM)
	capCM := cfg.CapCM
	if capCM <= 0 || capCM > height {
		capCM = height
	}
	return &SimulatedBin{
		heightCM:   height,
		capCM:      capCM,
		ratePerMin: cfg.RatePerMin,
		autoEmpty:  cfg.AutoEmpty,
		dropout:    cfg.DropoutEvery,
		jitterCM:   cfg.JitterCM,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		clock:      clock,
		last:       clock.Now(),
	}
}

// Echo advances the simulation to now and returns the echo for the current
// waste level.
func (b *SimulatedBin) Echo(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.advance(now)

	b.count++
	if b.dropout > 0 && b.count%b.dropout == 0 {
		return 0, nil
	}

	distance := b.heightCM - b.levelCM
	if b.jitterCM > 0 {
		distance += (b.rng.Float64()*2 - 1) * b.jitterCM
	}
	if distance < 0 {
		distance = 0
	}

	echo := EchoForDistance(int(distance + 0.5))
	if echo > timeout {
		return 0, nil
	}
	return echo, nil
}

// Empty resets the waste level to zero, as after a collection.
func (b *SimulatedBin) Empty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levelCM = 0
	b.fullSince = time.Time{}
}

// SetLevel forces the waste level, clamped to the bin height.
func (b *SimulatedBin) SetLevel(cm float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levelCM = min(max(cm, 0), b.heightCM)
	b.last = b.clock.Now()
}

// Level returns the current waste level in centimetres.
func (b *SimulatedBin) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levelCM
}

func (b *SimulatedBin) advance(now time.Time) {
	dtMin := now.Sub(b.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	b.last = now

	if b.levelCM < b.capCM {
		b.levelCM = min(b.levelCM+b.ratePerMin*dtMin, b.capCM)
	}

	if b.levelCM < b.capCM {
		return
	}
	if b.fullSince.IsZero() {
		b.fullSince = now
		return
	}
	if b.autoEmpty > 0 && now.Sub(b.fullSince) >= b.autoEmpty {
		b.levelCM = 0
		b.fullSince = time.Time{}
	}
}
