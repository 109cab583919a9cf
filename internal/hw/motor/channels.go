package motor

import (
	"fmt"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/hw/gpio"
)

// Topology is the number of lines of one kind wired to the driver.
type Topology int

const (
	None Topology = iota
	Single
	Dual
)

func (t Topology) String() string {
	switch t {
	case None:
		return "none"
	case Single:
		return "single"
	case Dual:
		return "dual"
	default:
		return "unknown"
	}
}

// EnableConfig holds zero, one or two enable outputs.
// Build it with NoEnable, SingleEnable or DualEnable.
type EnableConfig struct {
	kind    Topology
	primary gpio.DigitalOutput
	second  gpio.DigitalOutput
}

// NoEnable models a driver without enable line, active whenever PWM is nonzero.
func NoEnable() EnableConfig { return EnableConfig{kind: None} }

// SingleEnable models one enable line for the whole driver.
func SingleEnable(o gpio.DigitalOutput) EnableConfig {
	return EnableConfig{kind: Single, primary: o}
}

// DualEnable models one enable line per half-bridge.
func DualEnable(a, b gpio.DigitalOutput) EnableConfig {
	return EnableConfig{kind: Dual, primary: a, second: b}
}

// Topology returns the variant.
func (e EnableConfig) Topology() Topology { return e.kind }

func (e EnableConfig) outputs() []gpio.DigitalOutput {
	switch e.kind {
	case Single:
		return []gpio.DigitalOutput{e.primary}
	case Dual:
		return []gpio.DigitalOutput{e.primary, e.second}
	default:
		return nil
	}
}

// PWMConfig holds zero, one or two PWM channels.
// Build it with NoPWM, SinglePWM or DualPWM.
//
// With a single channel the direction is realized outside this package
// (enable polarity, a direction pin, or driver sign logic). With two
// channels the primary drives forward and the secondary reverse.
type PWMConfig struct {
	kind    Topology
	primary gpio.PWMOutput
	second  gpio.PWMOutput
}

// NoPWM models a digital-only driver.
func NoPWM() PWMConfig { return PWMConfig{kind: None} }

// SinglePWM models sign-magnitude control.
func SinglePWM(p gpio.PWMOutput) PWMConfig {
	return PWMConfig{kind: Single, primary: p}
}

// DualPWM models locked anti-phase control, one channel per direction.
func DualPWM(primary, secondary gpio.PWMOutput) PWMConfig {
	return PWMConfig{kind: Dual, primary: primary, second: secondary}
}

// Topology returns the variant.
func (p PWMConfig) Topology() Topology { return p.kind }

func (p PWMConfig) outputs() []gpio.PWMOutput {
	switch p.kind {
	case Single:
		return []gpio.PWMOutput{p.primary}
	case Dual:
		return []gpio.PWMOutput{p.primary, p.second}
	default:
		return nil
	}
}

// ChannelSet is the fixed set of enable and PWM lines of one motor.
// Its topology never changes after construction.
type ChannelSet struct {
	enable EnableConfig
	pwm    PWMConfig
}

// NewChannelSet checks that every configured line is present.
func NewChannelSet(enable EnableConfig, pwm PWMConfig) (*ChannelSet, error) {
	for i, o := range enable.outputs() {
		if o == nil {
			return nil, fmt.Errorf("%w: enable output %d is nil", ErrInvalidConfiguration, i)
		}
	}
	for i, p := range pwm.outputs() {
		if p == nil {
			return nil, fmt.Errorf("%w: pwm channel %d is nil", ErrInvalidConfiguration, i)
		}
	}
	return &ChannelSet{enable: enable, pwm: pwm}, nil
}

// EnableTopology returns the enable variant.
func (c *ChannelSet) EnableTopology() Topology { return c.enable.kind }

// PWMTopology returns the PWM variant.
func (c *ChannelSet) PWMTopology() Topology { return c.pwm.kind }

// checkMaxDuty verifies that every channel can represent maxDuty.
func (c *ChannelSet) checkMaxDuty(maxDuty uint16) error {
	for i, p := range c.pwm.outputs() {
		if p.MaxDutyCycle() < maxDuty {
			return fmt.Errorf("%w: pwm channel %d max duty %d < %d",
				ErrInvalidConfiguration, i, p.MaxDutyCycle(), maxDuty)
		}
	}
	return nil
}

// SetEnabled drives every enable line high or low. Without enable lines it
// does nothing.
func (c *ChannelSet) SetEnabled(on bool) error {
	for i, o := range c.enable.outputs() {
		var err error
		if on {
			err = o.SetHigh()
		} else {
			err = o.SetLow()
		}
		if err != nil {
			return gpioError(fmt.Sprintf("enable line %d", i), err)
		}
	}
	return nil
}

// Plan returns the duty for each configured PWM channel, primary first,
// for a duty magnitude and direction. duty is clamped to maxDuty.
//
//	dual, forward:   duty, 0
//	dual, reverse:   0, duty
//	dual, brake:     maxDuty, maxDuty
//	dual, coast:     0, 0
//	single, coast:   0
//	single, other:   duty
func (c *ChannelSet) Plan(duty, maxDuty uint16, dir Direction) []uint16 {
	if duty > maxDuty {
		duty = maxDuty
	}
	switch c.pwm.kind {
	case Single:
		if dir == Coast {
			return []uint16{0}
		}
		return []uint16{duty}
	case Dual:
		switch dir {
		case Forward:
			return []uint16{duty, 0}
		case Reverse:
			return []uint16{0, duty}
		case Brake:
			return []uint16{maxDuty, maxDuty}
		default:
			return []uint16{0, 0}
		}
	default:
		return nil
	}
}

// Apply writes Plan(duty, maxDuty, dir) to the PWM channels.
func (c *ChannelSet) Apply(duty, maxDuty uint16, dir Direction) error {
	return c.write(c.Plan(duty, maxDuty, dir))
}

// Zero sets every PWM channel to 0.
func (c *ChannelSet) Zero() error {
	return c.write(make([]uint16, len(c.pwm.outputs())))
}

func (c *ChannelSet) write(duties []uint16) error {
	for i, p := range c.pwm.outputs() {
		if err := p.SetDutyCycle(duties[i]); err != nil {
			return pwmError(fmt.Sprintf("pwm channel %d", i), err)
		}
	}
	debug.Verbose("PWM duties %v", duties)
	return nil
}
