package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

// MotorConfig holds the speed range of the motor.
type MotorConfig struct {
	MaxDuty      int `yaml:"max_duty"`      // duty ticks per PWM period; speed range is ±max_duty
	InitialSpeed int `yaml:"initial_speed"` // staged at initialization, motor stays disabled
}

// EnableConfig lists the driver enable pins (BCM). 0, 1 or 2 entries. Active HIGH.
type EnableConfig struct {
	Pins []int `yaml:"pins"`
}

// PWMConfig lists the hardware PWM pins (BCM). 0, 1 or 2 entries.
// With two pins the first drives forward, the second reverse.
type PWMConfig struct {
	Pins        []int `yaml:"pins"`
	FrequencyHz int   `yaml:"frequency_hz"`
}

// EncoderConfig is optional: quadrature encoder wiring.
type EncoderConfig struct {
	PinA             int   `yaml:"pin_a"`
	PinB             int   `yaml:"pin_b"`
	PPR              int   `yaml:"ppr"`                // pulses per revolution, 0 = unset
	TargetPulse      int32 `yaml:"target_pulse"`       // position checked against PPR
	SampleIntervalUs int   `yaml:"sample_interval_us"` // polling period of the phases
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Driver     string `yaml:"driver"`      // GPIO backend: mock, rpio or periph
	DemoSpeed  int    `yaml:"demo_speed"`  // speed used by demo routines
	StepMs     int    `yaml:"step_ms"`     // how long each demo step lasts
}

// Config aggregates all application configuration.
type Config struct {
	Motor    MotorConfig    `yaml:"motor"`
	Enable   EnableConfig   `yaml:"enable"`
	PWM      PWMConfig      `yaml:"pwm"`
	Encoder  *EncoderConfig `yaml:"encoder,omitempty"` // optional
	Defaults DefaultsConfig `yaml:"defaults"`
}

// envOverrides are read from the environment after the file.
type envOverrides struct {
	Driver     string `env:"GOBRIDGE_DRIVER"`
	DebugLevel int    `env:"GOBRIDGE_DEBUG_LEVEL" envDefault:"-1"`
}

// ValidateConfigPath rejects paths outside a configs/ directory or not
// ending in .yaml.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if ov.Driver != "" {
		cfg.Defaults.Driver = ov.Driver
	}
	if ov.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = ov.DebugLevel
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Motor.MaxDuty <= 0 {
		c.Motor.MaxDuty = 1000 // reasonable default
	}
	if c.Motor.MaxDuty > 0x7FFF {
		// Speeds are signed 16-bit.
		return fmt.Errorf("motor.max_duty must be <= 32767, got %d", c.Motor.MaxDuty)
	}
	if c.Motor.InitialSpeed < -c.Motor.MaxDuty || c.Motor.InitialSpeed > c.Motor.MaxDuty {
		return fmt.Errorf("motor.initial_speed must be within ±%d, got %d", c.Motor.MaxDuty, c.Motor.InitialSpeed)
	}

	if len(c.Enable.Pins) > 2 {
		return fmt.Errorf("enable.pins accepts at most 2 pins, got %d", len(c.Enable.Pins))
	}
	if len(c.PWM.Pins) > 2 {
		return fmt.Errorf("pwm.pins accepts at most 2 pins, got %d", len(c.PWM.Pins))
	}
	if c.PWM.FrequencyHz <= 0 {
		c.PWM.FrequencyHz = 1000 // 1 kHz
	}

	seen := make(map[int]string)
	use := func(pin int, role string) error {
		if pin <= 0 {
			return fmt.Errorf("%s pin must be > 0, got %d", role, pin)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("pin %d used for both %s and %s", pin, prev, role)
		}
		seen[pin] = role
		return nil
	}
	for _, p := range c.Enable.Pins {
		if err := use(p, "enable"); err != nil {
			return err
		}
	}
	for _, p := range c.PWM.Pins {
		if err := use(p, "pwm"); err != nil {
			return err
		}
	}

	if c.Encoder != nil {
		if err := use(c.Encoder.PinA, "encoder A"); err != nil {
			return err
		}
		if err := use(c.Encoder.PinB, "encoder B"); err != nil {
			return err
		}
		if c.Encoder.PPR < 0 {
			return fmt.Errorf("encoder.ppr must be >= 0, got %d", c.Encoder.PPR)
		}
		if c.Encoder.SampleIntervalUs <= 0 {
			c.Encoder.SampleIntervalUs = 100 // 10 kHz polling
		}
	}

	switch c.Defaults.Driver {
	case "":
		c.Defaults.Driver = "mock"
	case "mock", "rpio", "periph":
	default:
		return fmt.Errorf("defaults.driver must be mock, rpio or periph, got %q", c.Defaults.Driver)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.DemoSpeed == 0 {
		c.Defaults.DemoSpeed = c.Motor.MaxDuty / 2
	}
	if c.Defaults.DemoSpeed < 0 || c.Defaults.DemoSpeed > c.Motor.MaxDuty {
		return fmt.Errorf("defaults.demo_speed must be between 1 and %d, got %d", c.Motor.MaxDuty, c.Defaults.DemoSpeed)
	}
	if c.Defaults.StepMs <= 0 {
		c.Defaults.StepMs = 1000
	}
	return nil
}

// SampleInterval returns the encoder polling period, 0 without encoder.
func (c *Config) SampleInterval() time.Duration {
	if c.Encoder == nil {
		return 0
	}
	return time.Duration(c.Encoder.SampleIntervalUs) * time.Microsecond
}

// StepDuration returns how long each demo step lasts.
func (c *Config) StepDuration() time.Duration {
	return time.Duration(c.Defaults.StepMs) * time.Millisecond
}

// MaxDuty returns the motor max duty as the controller type.
func (c *Config) MaxDuty() uint16 {
	return uint16(c.Motor.MaxDuty)
}
