package gpio

import (
	"fmt"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// Hardware PWM capable BCM pins on the 40-pin header.
var rpiPWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins   map[int]rpio.Pin
	cycles map[int]uint32
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
// Hardware PWM additionally requires /dev/mem (root).
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:   make(map[int]rpio.Pin),
		cycles: make(map[int]uint32),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	case PWM:
		if !rpiPWMPins[pin] {
			return fmt.Errorf("pin %d has no hardware PWM", pin)
		}
		p.Pwm()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// SetupPWM switches pin to its PWM alternate function. The PWM clock runs at
// freqHz*cycle so that one period of cycle ticks lasts 1/freqHz.
func (r *RPiDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	if cycle == 0 {
		return fmt.Errorf("pwm pin %d: cycle must be > 0", pin)
	}
	if err := r.SetupPin(pin, PWM); err != nil {
		return err
	}
	p := r.pins[pin]
	p.Freq(freqHz * int(cycle))
	p.DutyCycle(0, cycle)
	r.cycles[pin] = cycle
	debug.Verbose("PWM pin %d: %d Hz, %d ticks per period", pin, freqHz, cycle)
	return nil
}

func (r *RPiDriver) WriteDuty(pin int, duty uint32) error {
	cycle, ok := r.cycles[pin]
	if !ok {
		return fmt.Errorf("pwm pin %d not configured", pin)
	}
	debug.PWM(pin, duty, cycle)
	r.pins[pin].DutyCycle(duty, cycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	if len(r.cycles) > 0 {
		for pin, cycle := range r.cycles {
			r.pins[pin].DutyCycle(0, cycle)
		}
		rpio.StopPwm()
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
