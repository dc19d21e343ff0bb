package hardware

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// LED is a status indicator wired active-high to a GPIO output.
type LED struct {
	name string
	pin  gpio.PinIO
}

// OpenLED resolves the named pin and switches the LED off.
func OpenLED(name string) (*LED, error) {
	pin, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	return NewLED(name, pin)
}

// NewLED wraps an already-resolved pin and switches the LED off.
func NewLED(name string, pin gpio.PinIO) (*LED, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hardware: configure led %s: %w", name, err)
	}
	return &LED{name: name, pin: pin}, nil
}

// Name returns the logical name given at construction.
func (l *LED) Name() string { return l.name }

// Set drives the LED on or off.
func (l *LED) Set(on bool) error {
	if err := l.pin.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("hardware: set led %s: %w", l.name, err)
	}
	return nil
}

// Level reads the pin back.
func (l *LED) Level() bool {
	return bool(l.pin.Read())
}

// LogLED is an indicator without hardware: it remembers its level and logs
// every change. Used on hosts with no LEDs attached.
type LogLED struct {
	mu     sync.Mutex
	name   string
	on     bool
	logger *slog.Logger
}

// NewLogLED creates a LogLED that starts off.
func NewLogLED(name string, logger *slog.Logger) *LogLED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogLED{name: name, logger: logger}
}

// Name returns the logical name given at construction.
func (l *LogLED) Name() string { return l.name }

// Set records the new level and logs transitions.
func (l *LogLED) Set(on bool) error {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()

	if changed {
		l.logger.Info("indicator changed", "led", l.name, "on", on)
	}
	return nil
}

// Level returns the last level set.
func (l *LogLED) Level() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
