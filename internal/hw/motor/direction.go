package motor

// Direction is the commanded bridge state.
type Direction int

const (
	// Coast leaves the motor terminals floating; the motor spins down freely.
	Coast Direction = iota
	Forward
	Reverse
	// Brake drives both terminals to the same potential.
	Brake
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	case Brake:
		return "brake"
	case Coast:
		return "coast"
	default:
		return "unknown"
	}
}

// directionForSpeed returns the direction implied by a speed command.
// Zero keeps the current direction.
func directionForSpeed(speed int16, current Direction) Direction {
	switch {
	case speed < 0:
		return Reverse
	case speed > 0:
		return Forward
	default:
		return current
	}
}

// magnitude returns |speed| without overflowing on math.MinInt16.
func magnitude(speed int16) uint16 {
	if speed < 0 {
		return uint16(-int32(speed))
	}
	return uint16(speed)
}
