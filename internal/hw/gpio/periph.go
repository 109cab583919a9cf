package gpio

import (
	"fmt"
	"strconv"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/cjeanneret/GoBridge/internal/debug"
)

// PeriphDriver drives pins through periph.io, which covers Linux gpiochip,
// sysfs and the Raspberry Pi/Allwinner/BeagleBone register drivers.
// Pins are looked up by their GPIO number.
type PeriphDriver struct {
	pins   map[int]pgpio.PinIO
	freqs  map[int]physic.Frequency
	cycles map[int]uint32
}

// NewPeriphDriver loads the periph host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing periph.io GPIO driver")

	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	for _, d := range state.Loaded {
		debug.Verbose("periph driver loaded: %s", d)
	}

	return &PeriphDriver{
		pins:   make(map[int]pgpio.PinIO),
		freqs:  make(map[int]physic.Frequency),
		cycles: make(map[int]uint32),
	}, nil
}

func (p *PeriphDriver) lookup(pin int) (pgpio.PinIO, error) {
	if io, ok := p.pins[pin]; ok {
		return io, nil
	}
	io := gpioreg.ByName(strconv.Itoa(pin))
	if io == nil {
		return nil, fmt.Errorf("gpio %d not found", pin)
	}
	p.pins[pin] = io
	return io, nil
}

func (p *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return io.In(pgpio.PullUp, pgpio.NoEdge)
	case Output:
		return io.Out(pgpio.Low)
	case PWM:
		return nil
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (p *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	io, err := p.lookup(pin)
	if err != nil {
		return err
	}
	return io.Out(pgpio.Level(level))
}

func (p *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	io, err := p.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(io.Read()), nil
}

func (p *PeriphDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	if cycle == 0 {
		return fmt.Errorf("pwm pin %d: cycle must be > 0", pin)
	}
	if err := p.SetupPin(pin, PWM); err != nil {
		return err
	}
	p.freqs[pin] = physic.Frequency(freqHz) * physic.Hertz
	p.cycles[pin] = cycle
	debug.Verbose("PWM pin %d: %s, %d ticks per period", pin, p.freqs[pin], cycle)
	return p.pins[pin].PWM(0, p.freqs[pin])
}

func (p *PeriphDriver) WriteDuty(pin int, duty uint32) error {
	cycle, ok := p.cycles[pin]
	if !ok {
		return fmt.Errorf("pwm pin %d not configured", pin)
	}
	debug.PWM(pin, duty, cycle)
	return p.pins[pin].PWM(dutyFraction(duty, cycle), p.freqs[pin])
}

// dutyFraction scales duty/cycle into periph's fixed-point duty range.
func dutyFraction(duty, cycle uint32) pgpio.Duty {
	if duty >= cycle {
		return pgpio.DutyMax
	}
	return pgpio.Duty(int64(duty) * int64(pgpio.DutyMax) / int64(cycle))
}

// Close halts every pin it touched and returns all halt errors combined.
func (p *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph driver)")

	var err error
	for pin, io := range p.pins {
		debug.Verbose("Halting pin %d", pin)
		err = multierr.Append(err, io.Halt())
	}
	return err
}
