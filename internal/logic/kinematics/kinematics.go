package kinematics

import (
	"fmt"
	"math"
	"time"
)

// Calculator converts encoder pulses to angles and speeds.
type Calculator struct {
	ppr             float64
	pulsesPerDegree float64
}

// NewCalculator creates a calculator for an encoder with ppr pulses per revolution.
func NewCalculator(ppr uint32) (*Calculator, error) {
	if ppr == 0 {
		return nil, fmt.Errorf("ppr must be > 0")
	}
	return &Calculator{
		ppr:             float64(ppr),
		pulsesPerDegree: float64(ppr) / 360.0,
	}, nil
}

// Revolutions converts a pulse count to shaft revolutions.
func (c *Calculator) Revolutions(pulses int32) float64 {
	return float64(pulses) / c.ppr
}

// Degrees converts a pulse count to a shaft angle in degrees (not wrapped).
func (c *Calculator) Degrees(pulses int32) float64 {
	return float64(pulses) / c.pulsesPerDegree
}

// PulsesFromDegrees converts an angle to the nearest pulse count.
func (c *Calculator) PulsesFromDegrees(angleDegrees float64) int32 {
	return int32(math.Round(angleDegrees * c.pulsesPerDegree))
}

// RPM returns the shaft speed for delta pulses counted over elapsed.
func (c *Calculator) RPM(delta int32, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return c.Revolutions(delta) / elapsed.Minutes()
}

// PulsesPerSecond returns the raw pulse rate for delta pulses over elapsed.
func PulsesPerSecond(delta int32, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed.Seconds()
}
