package motor

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/hw/gpio"
)

// Config holds the settings of a Controller.
type Config struct {
	MaxDuty      uint16 // required, > 0; speed range is -MaxDuty..MaxDuty
	PPR          uint32 // encoder pulses per revolution, 0 = unset
	InitialSpeed int16  // staged speed, synthesized by Initialize
}

// Option configures optional collaborators of a Controller.
type Option func(*Controller)

// WithEncoder attaches a quadrature decoder.
func WithEncoder(d *QuadratureDecoder) Option {
	return func(c *Controller) { c.encoder = d }
}

// Status is a consistent snapshot of a Controller.
type Status struct {
	Initialized bool      `json:"initialized"`
	Enabled     bool      `json:"enabled"`
	Speed       int16     `json:"speed"`
	Direction   Direction `json:"-"`
	DirName     string    `json:"direction"`
	MaxDuty     uint16    `json:"max_duty"`
	HasEncoder  bool      `json:"has_encoder"`
	Pulses      int32     `json:"pulses"`
	TargetPulse int32     `json:"target_pulse"`
	PPR         uint32    `json:"ppr"`
}

// Controller drives one brushed DC motor through an H-bridge.
//
// States: uninitialized, then initialized with the driver disabled, then
// enabled or disabled. Motion commands only need Initialize; they may be
// staged while disabled and take effect once the enable lines go high.
//
// All methods are safe for concurrent use. A single mutex serializes the
// command path and the encoder sampling path, since the underlying pins
// must have one writer at a time.
type Controller struct {
	mu          sync.Mutex
	channels    *ChannelSet
	encoder     *QuadratureDecoder
	maxDuty     uint16
	speed       int16
	direction   Direction
	initialized bool
	enabled     bool
}

// New binds a channel set to a controller. It touches no hardware; call
// Initialize before any command.
func New(channels *ChannelSet, cfg Config, opts ...Option) (*Controller, error) {
	if channels == nil {
		return nil, fmt.Errorf("%w: channel set is nil", ErrInvalidConfiguration)
	}
	if cfg.MaxDuty == 0 {
		return nil, fmt.Errorf("%w: max duty must be > 0", ErrInvalidConfiguration)
	}
	if magnitude(cfg.InitialSpeed) > cfg.MaxDuty {
		return nil, fmt.Errorf("%w: initial speed %d outside ±%d", ErrInvalidConfiguration, cfg.InitialSpeed, cfg.MaxDuty)
	}
	if err := channels.checkMaxDuty(cfg.MaxDuty); err != nil {
		return nil, err
	}

	c := &Controller{
		channels:  channels,
		maxDuty:   cfg.MaxDuty,
		speed:     cfg.InitialSpeed,
		direction: directionForSpeed(cfg.InitialSpeed, Coast),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.PPR > 0 {
		if c.encoder == nil {
			return nil, fmt.Errorf("%w: ppr set without encoder", ErrInvalidConfiguration)
		}
		if err := c.encoder.SetPPR(cfg.PPR); err != nil {
			return nil, err
		}
	}

	debug.Topology(channels.EnableTopology().String(), channels.PWMTopology().String(), cfg.MaxDuty)
	return c, nil
}

// NewSinglePWM builds a controller for one enable line and one PWM channel.
func NewSinglePWM(enable gpio.DigitalOutput, pwm gpio.PWMOutput, cfg Config, opts ...Option) (*Controller, error) {
	cs, err := NewChannelSet(SingleEnable(enable), SinglePWM(pwm))
	if err != nil {
		return nil, err
	}
	return New(cs, cfg, opts...)
}

// NewDualPWM builds a controller for two enable lines and two PWM channels.
func NewDualPWM(en1, en2 gpio.DigitalOutput, pwm1, pwm2 gpio.PWMOutput, cfg Config, opts ...Option) (*Controller, error) {
	cs, err := NewChannelSet(DualEnable(en1, en2), DualPWM(pwm1, pwm2))
	if err != nil {
		return nil, err
	}
	return New(cs, cfg, opts...)
}

// Initialize drives every enable line low and every PWM channel to 0,
// whatever the previous state, and marks the controller initialized.
// On the first call a nonzero InitialSpeed is then synthesized while the
// driver stays disabled. Later calls re-run the safe sequence and reset the
// commanded speed to 0 (coast).
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	debug.Section("Motor initialization")
	if err := c.channels.SetEnabled(false); err != nil {
		return err
	}
	c.enabled = false
	if err := c.channels.Zero(); err != nil {
		return err
	}
	first := !c.initialized
	c.initialized = true

	if !first {
		// Re-initializing forgets the last command; outputs stay at zero.
		c.speed = 0
		c.direction = Coast
		return nil
	}
	if c.speed != 0 {
		debug.Verbose("Staging initial speed %d", c.speed)
		return c.updatePWM()
	}
	return nil
}

// SetSpeed commands a signed speed. Negative means reverse, positive
// forward; zero keeps the previous direction.
//
// State is updated before hardware is written: if the write fails, Speed
// reports the commanded value although it was not applied.
func (c *Controller) SetSpeed(speed int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if magnitude(speed) > c.maxDuty {
		return fmt.Errorf("%w: %d outside ±%d", ErrInvalidSpeed, speed, c.maxDuty)
	}

	c.speed = speed
	c.direction = directionForSpeed(speed, c.direction)
	debug.Speed(speed, c.direction.String())
	return c.updatePWM()
}

// SetDirection sets forward or reverse without changing the speed.
func (c *Controller) SetDirection(forward bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if forward {
		c.direction = Forward
	} else {
		c.direction = Reverse
	}
	debug.Verbose("Direction set to %s", c.direction)
	return c.updatePWM()
}

// Stop zeroes the speed and lets the motor coast.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop()
}

func (c *Controller) stop() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	c.speed = 0
	c.direction = Coast
	debug.Live("Stop (coast)")
	return c.updatePWM()
}

// Brake zeroes the speed and shorts the motor terminals. With a single PWM
// channel no electrical braking is possible and the output is the same as
// Stop.
func (c *Controller) Brake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	c.speed = 0
	c.direction = Brake
	debug.Live("Brake")
	return c.updatePWM()
}

// Enable drives the enable lines high.
func (c *Controller) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.channels.SetEnabled(true); err != nil {
		return err
	}
	c.enabled = true
	debug.Live("Driver enabled")
	return nil
}

// Disable drives the enable lines low.
func (c *Controller) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disable()
}

func (c *Controller) disable() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.channels.SetEnabled(false); err != nil {
		return err
	}
	c.enabled = false
	debug.Live("Driver disabled")
	return nil
}

// SafeStop runs Stop then Disable under one lock, attempting Disable even
// when Stop fails. Both errors are returned combined.
func (c *Controller) SafeStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return multierr.Combine(c.stop(), c.disable())
}

// Speed returns the commanded speed.
func (c *Controller) Speed() (int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	return c.speed, nil
}

// Forward reports whether the commanded direction is Forward. Brake and
// Coast report false.
func (c *Controller) Forward() (bool, error) {
	d, err := c.Direction()
	return d == Forward, err
}

// Direction returns the commanded bridge state.
func (c *Controller) Direction() (Direction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return Coast, ErrNotInitialized
	}
	return c.direction, nil
}

// Enabled reports whether the enable lines were last driven high.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// MaxDuty returns the configured maximum duty.
func (c *Controller) MaxDuty() uint16 {
	return c.maxDuty
}

// Current is reserved for current sensing and always fails.
func (c *Controller) Current() (float32, error) {
	return 0, fmt.Errorf("%w: current sensing not available", ErrHardwareFault)
}

// Voltage is reserved for supply voltage sensing and always fails.
func (c *Controller) Voltage() (float32, error) {
	return 0, fmt.Errorf("%w: voltage sensing not available", ErrHardwareFault)
}

// Temperature is reserved for temperature sensing and always fails.
func (c *Controller) Temperature() (float32, error) {
	return 0, fmt.Errorf("%w: temperature sensing not available", ErrHardwareFault)
}

// FaultStatus returns the driver fault bits. No fault inputs exist yet, so
// it is always 0 once initialized.
func (c *Controller) FaultStatus() (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	return 0, nil
}

// Snapshot returns the state of the controller and its encoder.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Initialized: c.initialized,
		Enabled:     c.enabled,
		Speed:       c.speed,
		Direction:   c.direction,
		DirName:     c.direction.String(),
		MaxDuty:     c.maxDuty,
		HasEncoder:  c.encoder != nil,
	}
	if c.encoder != nil {
		s.Pulses = c.encoder.PulseCount()
		s.TargetPulse = c.encoder.TargetPulse()
		s.PPR = c.encoder.PPR()
	}
	return s
}

func (c *Controller) updatePWM() error {
	return c.channels.Apply(magnitude(c.speed), c.maxDuty, c.direction)
}

// --- encoder surface ---

func (c *Controller) withEncoder(fn func(*QuadratureDecoder) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder == nil {
		return fmt.Errorf("%w: no encoder configured", ErrHardwareFault)
	}
	return fn(c.encoder)
}

// ReadEncoder samples the encoder phases once.
func (c *Controller) ReadEncoder() error {
	return c.withEncoder(func(q *QuadratureDecoder) error {
		return q.ReadEncoder()
	})
}

// PulseCount returns the encoder position relative to the last reset.
func (c *Controller) PulseCount() (int32, error) {
	var n int32
	err := c.withEncoder(func(q *QuadratureDecoder) error {
		n = q.PulseCount()
		return nil
	})
	return n, err
}

// ResetEncoder makes the current encoder position zero.
func (c *Controller) ResetEncoder() error {
	return c.withEncoder(func(q *QuadratureDecoder) error {
		q.ResetEncoder()
		return nil
	})
}

// SetTargetPulse sets the position compared by CheckPPR.
func (c *Controller) SetTargetPulse(target int32) error {
	return c.withEncoder(func(q *QuadratureDecoder) error {
		q.SetTargetPulse(target)
		return nil
	})
}

// SetPPR sets the encoder resolution.
func (c *Controller) SetPPR(ppr uint32) error {
	return c.withEncoder(func(q *QuadratureDecoder) error {
		return q.SetPPR(ppr)
	})
}

// CheckPPR samples the encoder and reports an exact angular match with the
// target pulse.
func (c *Controller) CheckPPR() (bool, error) {
	return c.CheckPPRWithin(0)
}

// CheckPPRWithin is CheckPPR accepting up to tolerance pulses of error.
func (c *Controller) CheckPPRWithin(tolerance uint32) (bool, error) {
	var ok bool
	err := c.withEncoder(func(q *QuadratureDecoder) error {
		var err error
		ok, err = q.CheckPPRWithin(tolerance)
		return err
	})
	return ok, err
}
