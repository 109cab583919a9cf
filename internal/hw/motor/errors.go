package motor

import (
	"errors"
	"fmt"
)

// Configuration errors: caller misuse, fixed by correcting input or call order.
var (
	ErrNotInitialized       = errors.New("driver not initialized")
	ErrInvalidSpeed         = errors.New("invalid speed value")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// I/O errors: a capability write or read failed. They wrap the hardware cause.
var (
	ErrGPIO          = errors.New("GPIO control error")
	ErrPWM           = errors.New("PWM control error")
	ErrCommunication = errors.New("communication error")
)

// Fault conditions. Only ErrHardwareFault is raised today; the others are
// reserved for sensor integrations.
var (
	ErrHardwareFault   = errors.New("hardware fault detected")
	ErrOverCurrent     = errors.New("over current condition")
	ErrOverTemperature = errors.New("over temperature condition")
	ErrUnderVoltage    = errors.New("under voltage condition")
	ErrOverVoltage     = errors.New("over voltage condition")
)

// ErrorClass groups errors by how a caller should react.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassConfiguration
	ClassIO
	ClassFault
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassIO:
		return "io"
	case ClassFault:
		return "fault"
	default:
		return "unknown"
	}
}

var classes = []struct {
	err   error
	class ErrorClass
}{
	{ErrNotInitialized, ClassConfiguration},
	{ErrInvalidSpeed, ClassConfiguration},
	{ErrInvalidConfiguration, ClassConfiguration},
	{ErrGPIO, ClassIO},
	{ErrPWM, ClassIO},
	{ErrCommunication, ClassIO},
	{ErrHardwareFault, ClassFault},
	{ErrOverCurrent, ClassFault},
	{ErrOverTemperature, ClassFault},
	{ErrUnderVoltage, ClassFault},
	{ErrOverVoltage, ClassFault},
}

// Class reports the class of err. Any error is a signal to halt motion;
// the class only tells whether retrying with corrected input makes sense.
func Class(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassUnknown
}

func gpioError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrGPIO, cause)
}

func pwmError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPWM, cause)
}
