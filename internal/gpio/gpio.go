// Package gpio provides key input and indicator output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "github.com/sweeney/key-timer/internal/keys"

// Reader reads key input lines.
type Reader interface {
	// ReadLine returns true when key i is pressed.
	// Keys are wired active-low; the reader resolves the inversion.
	ReadLine(i keys.Index) (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Actuator drives the indicator output of each key.
type Actuator interface {
	// SetSignal switches the indicator of key i on or off.
	SetSignal(i keys.Index, on bool) error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
