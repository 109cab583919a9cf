package demo

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/logic/kinematics"
	"github.com/cjeanneret/GoBridge/internal/logic/sampler"
)

// Motor is the controller surface the demo routines drive.
type Motor interface {
	Enable() error
	SetSpeed(speed int16) error
	SetDirection(forward bool) error
	Stop() error
	Brake() error
	SafeStop() error
	MaxDuty() uint16
	ReadEncoder() error
	PulseCount() (int32, error)
}

// Params configures a demo routine.
type Params struct {
	Speed          int16         // magnitude used by the routine, clamped to max duty
	StepDuration   time.Duration // how long each step holds
	SampleInterval time.Duration // encoder polling period, monitor only
	PPR            uint32        // 0 disables angle reporting
}

// Sequence runs scripted motor routines (sweeps, direction and brake
// tests, encoder monitoring). Every routine leaves the motor stopped and
// disabled, including on error or cancellation.
type Sequence struct {
	motor Motor
}

func NewSequence(m Motor) *Sequence {
	return &Sequence{motor: m}
}

// Run dispatches a routine by name: sweep, direction, brake or monitor.
func (s *Sequence) Run(ctx context.Context, name string, p Params) error {
	switch name {
	case "sweep":
		return s.SpeedSweep(ctx, p)
	case "direction":
		return s.DirectionTest(ctx, p)
	case "brake":
		return s.BrakeTest(ctx, p)
	case "monitor":
		return s.EncoderMonitor(ctx, p)
	default:
		return fmt.Errorf("unknown demo %q (sweep, direction, brake, monitor)", name)
	}
}

// SpeedSweep ramps forward from 0 to the requested speed in 5 steps, back
// down, then mirrors the ramp in reverse.
func (s *Sequence) SpeedSweep(ctx context.Context, p Params) (err error) {
	debug.Section("Speed Sweep")
	defer s.finish(&err)

	if err := s.motor.Enable(); err != nil {
		return err
	}
	top := s.clamp(p.Speed)
	const steps = 5
	ramp := make([]int16, 0, 4*steps+1)
	for i := 0; i <= steps; i++ {
		ramp = append(ramp, int16(int(top)*i/steps))
	}
	for i := steps - 1; i >= 0; i-- {
		ramp = append(ramp, int16(int(top)*i/steps))
	}
	for i := 1; i <= steps; i++ {
		ramp = append(ramp, -int16(int(top)*i/steps))
	}
	for i := steps - 1; i >= 0; i-- {
		ramp = append(ramp, -int16(int(top)*i/steps))
	}

	for i, speed := range ramp {
		debug.Step(i+1, fmt.Sprintf("speed %d", speed))
		if err := s.motor.SetSpeed(speed); err != nil {
			return err
		}
		if err := wait(ctx, p.StepDuration); err != nil {
			return err
		}
	}
	return nil
}

// DirectionTest runs forward, stops, runs reverse, stops.
func (s *Sequence) DirectionTest(ctx context.Context, p Params) (err error) {
	debug.Section("Direction Test")
	defer s.finish(&err)

	if err := s.motor.Enable(); err != nil {
		return err
	}
	speed := s.clamp(p.Speed)
	for i, forward := range []bool{true, false} {
		name := "forward"
		if !forward {
			name = "reverse"
		}
		debug.Step(i+1, name)
		if err := s.motor.SetSpeed(speed); err != nil {
			return err
		}
		if err := s.motor.SetDirection(forward); err != nil {
			return err
		}
		if err := wait(ctx, p.StepDuration); err != nil {
			return err
		}
		if err := s.motor.Stop(); err != nil {
			return err
		}
		if err := wait(ctx, p.StepDuration/2); err != nil {
			return err
		}
	}
	return nil
}

// BrakeTest compares coasting to a stop against active braking.
func (s *Sequence) BrakeTest(ctx context.Context, p Params) (err error) {
	debug.Section("Brake Test")
	defer s.finish(&err)

	if err := s.motor.Enable(); err != nil {
		return err
	}
	speed := s.clamp(p.Speed)
	halts := []struct {
		name string
		fn   func() error
	}{
		{"coast", s.motor.Stop},
		{"brake", s.motor.Brake},
	}
	for i, h := range halts {
		debug.Step(i+1, "run then "+h.name)
		if err := s.motor.SetSpeed(speed); err != nil {
			return err
		}
		if err := wait(ctx, p.StepDuration); err != nil {
			return err
		}
		if err := h.fn(); err != nil {
			return err
		}
		if err := wait(ctx, p.StepDuration); err != nil {
			return err
		}
	}
	return nil
}

// EncoderMonitor runs the motor at the requested speed and reports the
// encoder position every step until ctx is cancelled.
func (s *Sequence) EncoderMonitor(ctx context.Context, p Params) (err error) {
	debug.Section("Encoder Monitor")
	defer s.finish(&err)

	var calc *kinematics.Calculator
	if p.PPR > 0 {
		if calc, err = kinematics.NewCalculator(p.PPR); err != nil {
			return err
		}
	}
	report := func(r sampler.Reading) {
		if calc == nil || !debug.IsEnabled(debug.LevelLive) {
			return
		}
		debug.Live("%.1f deg, %.1f rpm", calc.Degrees(r.Count), calc.RPM(r.Delta, p.StepDuration))
	}
	smp, err := sampler.New(s.motor, p.SampleInterval, p.StepDuration, report)
	if err != nil {
		return err
	}

	if err := s.motor.Enable(); err != nil {
		return err
	}
	if err := s.motor.SetSpeed(s.clamp(p.Speed)); err != nil {
		return err
	}
	return smp.Run(ctx)
}

// finish stops and disables the motor, merging any failure into *err.
func (s *Sequence) finish(err *error) {
	if stopErr := s.motor.SafeStop(); stopErr != nil {
		*err = multierr.Append(*err, fmt.Errorf("safe stop: %w", stopErr))
	}
	debug.Live("Motor stopped and disabled")
}

// clamp returns the magnitude of speed, capped at the motor's max duty and
// at the int16 range.
func (s *Sequence) clamp(speed int16) int16 {
	limit := int(s.motor.MaxDuty())
	if limit > math.MaxInt16 {
		limit = math.MaxInt16
	}
	v := int(speed)
	if v < 0 {
		v = -v
	}
	if v > limit {
		v = limit
	}
	return int16(v)
}

// wait sleeps for d or returns ctx.Err() if cancelled first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
