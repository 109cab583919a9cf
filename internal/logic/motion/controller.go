package motion

import (
	"fmt"

	"github.com/cjeanneret/GoBridge/internal/config"
	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/hw/gpio"
	"github.com/cjeanneret/GoBridge/internal/hw/motor"
)

// NewController wires the pins named in cfg on drv into a motor
// controller. It is the layer between configuration and the motor
// package: nothing is initialized, the caller runs Initialize.
func NewController(drv gpio.Driver, cfg *config.Config) (*motor.Controller, error) {
	debug.Section("Pin setup")

	enable, err := enableConfig(drv, cfg.Enable.Pins)
	if err != nil {
		return nil, err
	}
	pwm, err := pwmConfig(drv, cfg.PWM.Pins, cfg.PWM.FrequencyHz, cfg.MaxDuty())
	if err != nil {
		return nil, err
	}
	channels, err := motor.NewChannelSet(enable, pwm)
	if err != nil {
		return nil, err
	}

	mcfg := motor.Config{
		MaxDuty:      cfg.MaxDuty(),
		InitialSpeed: int16(cfg.Motor.InitialSpeed),
	}
	var opts []motor.Option
	if e := cfg.Encoder; e != nil {
		dec, err := newDecoder(drv, e.PinA, e.PinB)
		if err != nil {
			return nil, err
		}
		dec.SetTargetPulse(e.TargetPulse)
		mcfg.PPR = uint32(e.PPR)
		opts = append(opts, motor.WithEncoder(dec))
	}

	return motor.New(channels, mcfg, opts...)
}

func enableConfig(drv gpio.Driver, pins []int) (motor.EnableConfig, error) {
	outs := make([]gpio.DigitalOutput, 0, len(pins))
	for _, p := range pins {
		o, err := gpio.NewOutputPin(drv, p)
		if err != nil {
			return motor.EnableConfig{}, fmt.Errorf("enable pin %d: %w: %w", p, motor.ErrGPIO, err)
		}
		debug.Verbose("Enable line on GPIO %d", p)
		outs = append(outs, o)
	}
	switch len(outs) {
	case 0:
		return motor.NoEnable(), nil
	case 1:
		return motor.SingleEnable(outs[0]), nil
	case 2:
		return motor.DualEnable(outs[0], outs[1]), nil
	default:
		return motor.EnableConfig{}, fmt.Errorf("%w: %d enable pins", motor.ErrInvalidConfiguration, len(outs))
	}
}

func pwmConfig(drv gpio.Driver, pins []int, freqHz int, maxDuty uint16) (motor.PWMConfig, error) {
	outs := make([]gpio.PWMOutput, 0, len(pins))
	for _, p := range pins {
		o, err := gpio.NewPWMPin(drv, p, freqHz, maxDuty)
		if err != nil {
			return motor.PWMConfig{}, fmt.Errorf("pwm pin %d: %w: %w", p, motor.ErrPWM, err)
		}
		debug.Verbose("PWM channel on GPIO %d at %d Hz", p, freqHz)
		outs = append(outs, o)
	}
	switch len(outs) {
	case 0:
		return motor.NoPWM(), nil
	case 1:
		return motor.SinglePWM(outs[0]), nil
	case 2:
		return motor.DualPWM(outs[0], outs[1]), nil
	default:
		return motor.PWMConfig{}, fmt.Errorf("%w: %d pwm pins", motor.ErrInvalidConfiguration, len(outs))
	}
}

func newDecoder(drv gpio.Driver, pinA, pinB int) (*motor.QuadratureDecoder, error) {
	a, err := gpio.NewInputPin(drv, pinA)
	if err != nil {
		return nil, fmt.Errorf("encoder pin %d: %w: %w", pinA, motor.ErrGPIO, err)
	}
	b, err := gpio.NewInputPin(drv, pinB)
	if err != nil {
		return nil, fmt.Errorf("encoder pin %d: %w: %w", pinB, motor.ErrGPIO, err)
	}
	debug.Verbose("Encoder on GPIO %d/%d", pinA, pinB)
	return motor.NewQuadratureDecoder(a, b)
}
