package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/GoBridge/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input, output or hardware PWM.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// Driver kinds accepted by NewDriver.
const (
	KindMock   = "mock"
	KindRPi    = "rpio"
	KindPeriph = "periph"
)

// Driver defines the abstract interface for controlling GPIOs and PWM pins.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetupPWM configures pin for hardware PWM at freqHz with a period of
	// cycle ticks. Duties written later are expressed in those ticks.
	SetupPWM(pin int, freqHz int, cycle uint32) error
	WriteDuty(pin int, duty uint32) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen kind.
func NewDriver(kind string) (Driver, error) {
	switch kind {
	case "", KindMock:
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case KindRPi:
		return NewRPiRealDriver()
	case KindPeriph:
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("unknown GPIO driver %q (want %s, %s or %s)", kind, KindMock, KindRPi, KindPeriph)
	}
}

// MockDriver is a test implementation that logs actions and remembers
// the last level and duty written to each pin.
// Used for development on PC or testing.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	duties map[int]uint32
	cycles map[int]uint32
}

func NewMockDriver() *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
		duties: make(map[int]uint32),
		cycles: make(map[int]uint32),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if cycle == 0 {
		return fmt.Errorf("pwm pin %d: cycle must be > 0", pin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = PWM
	m.cycles[pin] = cycle
	m.duties[pin] = 0
	return nil
}

func (m *MockDriver) WriteDuty(pin int, duty uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cycle, ok := m.cycles[pin]
	if !ok {
		return fmt.Errorf("pwm pin %d not configured", pin)
	}
	debug.PWM(pin, duty, cycle)
	m.duties[pin] = duty
	return nil
}

// SetInput forces the level returned by ReadPin, simulating an external signal.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
}

// Level returns the last level written to (or forced on) pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Duty returns the last duty written to a PWM pin.
func (m *MockDriver) Duty(pin int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duties[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
