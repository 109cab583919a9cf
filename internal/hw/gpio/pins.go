package gpio

import "fmt"

// DigitalOutput drives a single output line, such as a driver enable pin.
type DigitalOutput interface {
	SetLow() error
	SetHigh() error
}

// DigitalInput samples a single input line, such as an encoder phase.
type DigitalInput interface {
	IsHigh() (bool, error)
	IsLow() (bool, error)
}

// PWMOutput is one PWM channel. Duty values range from 0 to MaxDutyCycle().
type PWMOutput interface {
	SetDutyCycle(duty uint16) error
	MaxDutyCycle() uint16
}

// OutputPin binds a pin number of a Driver as a DigitalOutput.
type OutputPin struct {
	drv Driver
	pin int
}

// NewOutputPin configures pin as an output, initially LOW.
func NewOutputPin(d Driver, pin int) (*OutputPin, error) {
	if err := d.SetupPin(pin, Output); err != nil {
		return nil, fmt.Errorf("setup output pin %d: %w", pin, err)
	}
	if err := d.WritePin(pin, Low); err != nil {
		return nil, fmt.Errorf("reset output pin %d: %w", pin, err)
	}
	return &OutputPin{drv: d, pin: pin}, nil
}

func (o *OutputPin) SetLow() error  { return o.drv.WritePin(o.pin, Low) }
func (o *OutputPin) SetHigh() error { return o.drv.WritePin(o.pin, High) }

// Pin returns the pin number.
func (o *OutputPin) Pin() int { return o.pin }

// InputPin binds a pin number of a Driver as a DigitalInput.
type InputPin struct {
	drv Driver
	pin int
}

// NewInputPin configures pin as an input.
func NewInputPin(d Driver, pin int) (*InputPin, error) {
	if err := d.SetupPin(pin, Input); err != nil {
		return nil, fmt.Errorf("setup input pin %d: %w", pin, err)
	}
	return &InputPin{drv: d, pin: pin}, nil
}

func (i *InputPin) IsHigh() (bool, error) {
	l, err := i.drv.ReadPin(i.pin)
	if err != nil {
		return false, err
	}
	return l == High, nil
}

func (i *InputPin) IsLow() (bool, error) {
	high, err := i.IsHigh()
	return !high, err
}

// Pin returns the pin number.
func (i *InputPin) Pin() int { return i.pin }

// PWMPin binds a hardware PWM pin of a Driver as a PWMOutput whose
// duty range is 0..maxDuty.
type PWMPin struct {
	drv     Driver
	pin     int
	maxDuty uint16
}

// NewPWMPin configures pin for PWM at freqHz, with maxDuty ticks per period.
func NewPWMPin(d Driver, pin int, freqHz int, maxDuty uint16) (*PWMPin, error) {
	if maxDuty == 0 {
		return nil, fmt.Errorf("pwm pin %d: max duty must be > 0", pin)
	}
	if freqHz <= 0 {
		return nil, fmt.Errorf("pwm pin %d: frequency must be > 0, got %d", pin, freqHz)
	}
	if err := d.SetupPWM(pin, freqHz, uint32(maxDuty)); err != nil {
		return nil, fmt.Errorf("setup pwm pin %d: %w", pin, err)
	}
	return &PWMPin{drv: d, pin: pin, maxDuty: maxDuty}, nil
}

func (p *PWMPin) SetDutyCycle(duty uint16) error {
	if duty > p.maxDuty {
		return fmt.Errorf("pwm pin %d: duty %d exceeds max %d", p.pin, duty, p.maxDuty)
	}
	return p.drv.WriteDuty(p.pin, uint32(duty))
}

func (p *PWMPin) MaxDutyCycle() uint16 { return p.maxDuty }

// Pin returns the pin number.
func (p *PWMPin) Pin() int { return p.pin }
