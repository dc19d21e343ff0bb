package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Trigger pulse shape: hold low to settle, then a high pulse long enough for
// the module to register (datasheet minimum is 10µs).
const (
	triggerSettle = 5 * time.Microsecond
	triggerPulse  = 15 * time.Microsecond
)

// Ranger is an HC-SR04 ultrasonic ranging module.
//
// Datasheet: https://cdn.sparkfun.com/datasheets/Sensors/Proximity/HCSR04.pdf
type Ranger struct {
	mu      sync.Mutex
	trigger gpio.PinIO
	echo    gpio.PinIO

	// sleep is swapped in tests; busy-waiting is not needed at these
	// durations because the module latches the trigger on the falling edge.
	sleep func(time.Duration)
}

// OpenRanger resolves the named trigger and echo pins and configures them.
func OpenRanger(triggerName, echoName string) (*Ranger, error) {
	trigger, err := lookupPin(triggerName)
	if err != nil {
		return nil, err
	}
	echo, err := lookupPin(echoName)
	if err != nil {
		return nil, err
	}
	return NewRanger(trigger, echo)
}

// NewRanger wraps already-resolved pins. The trigger is driven low and the
// echo is configured as a pulled-down input.
func NewRanger(trigger, echo gpio.PinIO) (*Ranger, error) {
	if err := trigger.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hardware: configure trigger %s: %w", trigger, err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("hardware: configure echo %s: %w", echo, err)
	}
	return &Ranger{trigger: trigger, echo: echo, sleep: time.Sleep}, nil
}

// Echo fires one trigger pulse and returns the width of the echo pulse.
//
// A zero duration with a nil error means the echo did not start, or did not
// end, within timeout; the timeout bounds the whole measurement. Errors are
// only returned for pin failures.
func (r *Ranger) Echo(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Arm for the rising edge before triggering so it cannot be missed.
	if err := r.echo.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return 0, fmt.Errorf("hardware: arm echo: %w", err)
	}

	if err := r.trigger.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("hardware: trigger low: %w", err)
	}
	r.sleep(triggerSettle)
	if err := r.trigger.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("hardware: trigger high: %w", err)
	}
	r.sleep(triggerPulse)
	if err := r.trigger.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("hardware: trigger low: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if !r.echo.WaitForEdge(timeout) {
		return 0, nil
	}
	start := time.Now()

	if err := r.echo.In(gpio.PullNoChange, gpio.FallingEdge); err != nil {
		return 0, fmt.Errorf("hardware: arm echo falling edge: %w", err)
	}
	// A falling edge lost while re-arming only happens for pulses far below
	// the minimum valid distance; it surfaces as a timeout.
	remaining := time.Until(deadline)
	if remaining <= 0 || !r.echo.WaitForEdge(remaining) {
		return 0, nil
	}
	return time.Since(start), nil
}

// Halt leaves the trigger low and stops edge detection on the echo pin.
func (r *Ranger) Halt() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.trigger.Out(gpio.Low); err != nil {
		return err
	}
	return r.echo.In(gpio.PullDown, gpio.NoEdge)
}
