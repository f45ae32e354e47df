//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/key-timer/internal/keys"
)

// RealLines reads keys and drives indicators on actual hardware using the
// Linux GPIO character device. Key i reads inputs[i] and drives every line
// in outputs[i].
type RealLines struct {
	chip    *gpiocdev.Chip
	inputs  []*gpiocdev.Line
	outputs [][]*gpiocdev.Line
}

// NewRealLines requests one input line per key and the indicator lines of
// each key. outputs may be empty, and any key may have no outputs.
func NewRealLines(chipName string, inputs []int, outputs [][]int) (*RealLines, error) {
	if len(outputs) != 0 && len(outputs) != len(inputs) {
		return nil, fmt.Errorf("gpio: %d inputs but %d outputs", len(inputs), len(outputs))
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	r := &RealLines{chip: chip}

	// Buttons pull the line to ground when pressed, so request pull-up and
	// active-low: a logical 1 means pressed.
	for n, pin := range inputs {
		line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request key %d pin %d: %w", n, pin, err)
		}
		r.inputs = append(r.inputs, line)
	}

	r.outputs = make([][]*gpiocdev.Line, len(outputs))
	for n, pins := range outputs {
		for _, pin := range pins {
			line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("request output of key %d pin %d: %w", n, pin, err)
			}
			r.outputs[n] = append(r.outputs[n], line)
		}
	}

	return r, nil
}

// ReadLine returns true when key i is pressed.
func (r *RealLines) ReadLine(i keys.Index) (bool, error) {
	v, err := r.inputs[i].Value()
	if err != nil {
		return false, fmt.Errorf("read key %d: %w", i, err)
	}
	return v == 1, nil
}

// SetSignal switches every indicator line of key i. Keys without one are
// ignored.
func (r *RealLines) SetSignal(i keys.Index, on bool) error {
	if int(i) >= len(r.outputs) {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	var errs []error
	for n, line := range r.outputs[i] {
		if err := line.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("set output %d of key %d: %w", n, i, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases GPIO resources.
// Indicator lines are switched off and returned to inputs with pull-down
// (matching Pi boot defaults) before closing.
func (r *RealLines) Close() error {
	var errs []error

	for n, lines := range r.outputs {
		for _, line := range lines {
			if err := line.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("switch off output of key %d: %w", n, err))
			}
			if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure output of key %d: %w", n, err))
			}
			if err := line.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close output of key %d: %w", n, err))
			}
		}
	}
	for n, line := range r.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close key %d: %w", n, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	r.inputs, r.outputs, r.chip = nil, nil, nil
	return errors.Join(errs...)
}
