package motor

import (
	"fmt"

	"github.com/cjeanneret/GoBridge/internal/hw/gpio"
)

// transitions maps (lastA, lastB, curA, curB) packed as a 4-bit index to a
// count delta. Unchanged states and double-bit transitions both map to 0.
var transitions = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// QuadratureDecoder counts pulses from two encoder phases sampled by polling.
//
// A sample that sees both phases change at once is counted as no movement,
// so the count drifts permanently if the sampling rate falls below about
// twice the encoder's pulse rate. The 32-bit counter wraps silently.
//
// A decoder is not safe for concurrent use; the Controller that owns it
// serializes access.
type QuadratureDecoder struct {
	a, b   gpio.DigitalInput
	lastA  bool
	lastB  bool
	count  int32
	offset int32
	target int32
	ppr    uint32
}

// NewQuadratureDecoder creates a decoder whose previous phase state is (Low, Low).
func NewQuadratureDecoder(a, b gpio.DigitalInput) (*QuadratureDecoder, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: encoder needs two phase inputs", ErrInvalidConfiguration)
	}
	return &QuadratureDecoder{a: a, b: b}, nil
}

// ReadEncoder samples both phases once and updates the raw count.
func (q *QuadratureDecoder) ReadEncoder() error {
	curA, err := q.a.IsHigh()
	if err != nil {
		return gpioError("encoder phase A", err)
	}
	curB, err := q.b.IsHigh()
	if err != nil {
		return gpioError("encoder phase B", err)
	}
	q.count += int32(transitions[transitionIndex(q.lastA, q.lastB, curA, curB)])
	q.lastA, q.lastB = curA, curB
	return nil
}

func transitionIndex(lastA, lastB, curA, curB bool) int {
	idx := 0
	if lastA {
		idx |= 1 << 3
	}
	if lastB {
		idx |= 1 << 2
	}
	if curA {
		idx |= 1 << 1
	}
	if curB {
		idx |= 1
	}
	return idx
}

// PulseCount returns the count relative to the last reset.
func (q *QuadratureDecoder) PulseCount() int32 {
	return q.count - q.offset
}

// RawCount returns the count since construction.
func (q *QuadratureDecoder) RawCount() int32 {
	return q.count
}

// ResetEncoder makes the current position the new zero. The raw count is kept.
func (q *QuadratureDecoder) ResetEncoder() {
	q.offset = q.count
}

// SetTargetPulse sets the position CheckPPR compares against.
func (q *QuadratureDecoder) SetTargetPulse(target int32) {
	q.target = target
}

// TargetPulse returns the current target.
func (q *QuadratureDecoder) TargetPulse() int32 {
	return q.target
}

// SetPPR sets the encoder resolution in pulses per revolution.
func (q *QuadratureDecoder) SetPPR(ppr uint32) error {
	if ppr == 0 {
		return fmt.Errorf("%w: ppr must be > 0", ErrInvalidSpeed)
	}
	q.ppr = ppr
	return nil
}

// PPR returns the configured resolution, 0 when unset.
func (q *QuadratureDecoder) PPR() uint32 {
	return q.ppr
}

// CheckPPR samples the encoder, then reports whether the relative position
// and the target land on exactly the same angle within one revolution.
func (q *QuadratureDecoder) CheckPPR() (bool, error) {
	return q.CheckPPRWithin(0)
}

// CheckPPRWithin is CheckPPR with a tolerance of up to tolerance pulses in
// either direction, measured around the revolution.
func (q *QuadratureDecoder) CheckPPRWithin(tolerance uint32) (bool, error) {
	if q.ppr == 0 {
		return false, fmt.Errorf("%w: ppr not configured", ErrNotInitialized)
	}
	if err := q.ReadEncoder(); err != nil {
		return false, err
	}
	pos := wrapPPR(int64(q.PulseCount()), q.ppr)
	target := wrapPPR(int64(q.target), q.ppr)
	diff := pos - target
	if diff < 0 {
		diff = -diff
	}
	if other := int64(q.ppr) - diff; other < diff {
		diff = other
	}
	return diff <= int64(tolerance), nil
}

// wrapPPR returns v modulo ppr in [0, ppr).
func wrapPPR(v int64, ppr uint32) int64 {
	m := v % int64(ppr)
	if m < 0 {
		m += int64(ppr)
	}
	return m
}
