// Package hardware drives the physical I/O of the bin monitor through
// periph.io: the HC-SR04 ultrasonic ranger (trigger output, echo input) and
// the two status LEDs.
//
// Pins are addressed by their periph names ("GPIO5", "GPIO14", or a header
// position such as "P1_29"); see periph.io/x/conn/v3/gpio/gpioreg.
package hardware

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initErr = fmt.Errorf("hardware: periph host init: %w", err)
		}
	})
	return initErr
}

// lookupPin resolves a pin by name after Init.
func lookupPin(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("hardware: no GPIO pin named %q", name)
	}
	return pin, nil
}
