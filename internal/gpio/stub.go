//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/key-timer/internal/keys"
)

// RealLines is not available on non-Linux platforms.
type RealLines struct{}

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(chipName string, inputs []int, outputs [][]int) (*RealLines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadLine is not implemented on non-Linux platforms.
func (r *RealLines) ReadLine(i keys.Index) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetSignal is not implemented on non-Linux platforms.
func (r *RealLines) SetSignal(i keys.Index, on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealLines) Close() error {
	return nil
}
