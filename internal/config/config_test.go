package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"dual pwm.yaml", "moteur-café.yaml"} {
		if err := ValidateConfigPath(filepath.Join(cfgDir, name)); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
motor:
  max_duty: 1000
  initial_speed: 0
enable:
  pins: [23, 24]
pwm:
  pins: [18, 19]
  frequency_hz: 2000
encoder:
  pin_a: 25
  pin_b: 8
  ppr: 360
  target_pulse: 90
  sample_interval_us: 50
defaults:
  debug_level: 2
  driver: mock
  demo_speed: 300
  step_ms: 250
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxDuty() != 1000 {
		t.Errorf("max duty = %d, want 1000", cfg.MaxDuty())
	}
	if len(cfg.Enable.Pins) != 2 || cfg.Enable.Pins[0] != 23 || cfg.Enable.Pins[1] != 24 {
		t.Errorf("enable pins = %v, want [23 24]", cfg.Enable.Pins)
	}
	if len(cfg.PWM.Pins) != 2 || cfg.PWM.FrequencyHz != 2000 {
		t.Errorf("pwm = %+v", cfg.PWM)
	}
	if cfg.Encoder == nil || cfg.Encoder.PPR != 360 || cfg.Encoder.TargetPulse != 90 {
		t.Fatalf("encoder = %+v", cfg.Encoder)
	}
	if cfg.SampleInterval() != 50*time.Microsecond {
		t.Errorf("sample interval = %v, want 50µs", cfg.SampleInterval())
	}
	if cfg.StepDuration() != 250*time.Millisecond {
		t.Errorf("step duration = %v, want 250ms", cfg.StepDuration())
	}
	if cfg.Defaults.Driver != "mock" || cfg.Defaults.DebugLevel != 2 || cfg.Defaults.DemoSpeed != 300 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pwm:\n  pins: [18]\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Motor.MaxDuty != 1000 {
		t.Errorf("default max duty = %d, want 1000", cfg.Motor.MaxDuty)
	}
	if cfg.PWM.FrequencyHz != 1000 {
		t.Errorf("default frequency = %d, want 1000", cfg.PWM.FrequencyHz)
	}
	if cfg.Defaults.Driver != "mock" {
		t.Errorf("default driver = %q, want mock", cfg.Defaults.Driver)
	}
	if cfg.Defaults.DemoSpeed != 500 {
		t.Errorf("default demo speed = %d, want 500", cfg.Defaults.DemoSpeed)
	}
	if cfg.Encoder != nil || cfg.SampleInterval() != 0 {
		t.Error("encoder should be absent by default")
	}
}

func TestLoad_EncoderDefaultInterval(t *testing.T) {
	cfg, err := Load(writeConfig(t, "encoder:\n  pin_a: 25\n  pin_b: 8\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleInterval() != 100*time.Microsecond {
		t.Errorf("sample interval = %v, want 100µs", cfg.SampleInterval())
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"max_duty_too_large", "motor:\n  max_duty: 40000\n"},
		{"initial_speed_out_of_range", "motor:\n  max_duty: 100\n  initial_speed: -101\n"},
		{"three_enable_pins", "enable:\n  pins: [1, 2, 3]\n"},
		{"three_pwm_pins", "pwm:\n  pins: [12, 13, 18]\n"},
		{"duplicate_pin", "enable:\n  pins: [18]\npwm:\n  pins: [18]\n"},
		{"negative_pin", "enable:\n  pins: [-4]\n"},
		{"encoder_missing_pin", "encoder:\n  pin_a: 25\n"},
		{"encoder_negative_ppr", "encoder:\n  pin_a: 25\n  pin_b: 8\n  ppr: -1\n"},
		{"unknown_driver", "defaults:\n  driver: arduino\n"},
		{"debug_level_too_high", "defaults:\n  debug_level: 9\n"},
		{"demo_speed_too_high", "motor:\n  max_duty: 100\ndefaults:\n  demo_speed: 101\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GOBRIDGE_DRIVER", "periph")
	t.Setenv("GOBRIDGE_DEBUG_LEVEL", "4")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Driver != "periph" {
		t.Errorf("driver = %q, want periph", cfg.Defaults.Driver)
	}
	if cfg.Defaults.DebugLevel != 4 {
		t.Errorf("debug level = %d, want 4", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_EnvOverrideValidated(t *testing.T) {
	t.Setenv("GOBRIDGE_DRIVER", "arduino")
	if _, err := Load(writeConfig(t, validYAML)); err == nil {
		t.Error("invalid driver from environment should be rejected")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load with defaults, got: %v", err)
	}
	if len(cfg.Enable.Pins) != 0 || len(cfg.PWM.Pins) != 0 {
		t.Error("empty config should have no pins")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	if _, err := Load(writeConfig(t, validYAML+"unknown_section:\n  foo: bar\n")); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
