package motor

import "errors"

var errBus = errors.New("bus error")

// recordingOutput records enable line writes.
type recordingOutput struct {
	high   bool
	writes int
	fail   error
}

func (o *recordingOutput) SetLow() error {
	if o.fail != nil {
		return o.fail
	}
	o.high = false
	o.writes++
	return nil
}

func (o *recordingOutput) SetHigh() error {
	if o.fail != nil {
		return o.fail
	}
	o.high = true
	o.writes++
	return nil
}

// recordingPWM records duty writes.
type recordingPWM struct {
	max    uint16
	duty   uint16
	writes []uint16
	fail   error
}

func newRecordingPWM(max uint16) *recordingPWM {
	// Start from a nonzero duty so Initialize visibly resets it.
	return &recordingPWM{max: max, duty: max / 2}
}

func (p *recordingPWM) SetDutyCycle(duty uint16) error {
	if p.fail != nil {
		return p.fail
	}
	if duty > p.max {
		return errors.New("duty out of range")
	}
	p.duty = duty
	p.writes = append(p.writes, duty)
	return nil
}

func (p *recordingPWM) MaxDutyCycle() uint16 { return p.max }

// phaseInput returns the level set by the test.
type phaseInput struct {
	high bool
	fail error
}

func (i *phaseInput) IsHigh() (bool, error) { return i.high, i.fail }
func (i *phaseInput) IsLow() (bool, error)  { return !i.high, i.fail }

// encoderPair drives two phaseInputs together.
type encoderPair struct {
	a, b *phaseInput
}

func newEncoderPair() encoderPair {
	return encoderPair{a: &phaseInput{}, b: &phaseInput{}}
}

func (e encoderPair) set(a, b int) {
	e.a.high = a == 1
	e.b.high = b == 1
}

// forwardSequence is one full quadrature cycle in the counting-up sense.
var forwardSequence = [][2]int{{1, 0}, {1, 1}, {0, 1}, {0, 0}}

// reverseSequence is one full quadrature cycle in the counting-down sense.
var reverseSequence = [][2]int{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

// dualRig is a dual-enable, dual-PWM controller with its fakes.
type dualRig struct {
	en1, en2   *recordingOutput
	pwm1, pwm2 *recordingPWM
	ctrl       *Controller
}

func newDualRig(maxDuty uint16, opts ...Option) (*dualRig, error) {
	r := &dualRig{
		en1:  &recordingOutput{high: true},
		en2:  &recordingOutput{high: true},
		pwm1: newRecordingPWM(maxDuty),
		pwm2: newRecordingPWM(maxDuty),
	}
	ctrl, err := NewDualPWM(r.en1, r.en2, r.pwm1, r.pwm2, Config{MaxDuty: maxDuty}, opts...)
	if err != nil {
		return nil, err
	}
	r.ctrl = ctrl
	return r, nil
}
