package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/GoBridge/internal/config"
	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/hw/gpio"
	"github.com/cjeanneret/GoBridge/internal/hw/motor"
	"github.com/cjeanneret/GoBridge/internal/logic/demo"
	"github.com/cjeanneret/GoBridge/internal/logic/motion"
	"github.com/cjeanneret/GoBridge/internal/logic/sampler"
	"github.com/cjeanneret/GoBridge/internal/web"
)

// demoNames lists the routines accepted by -demo and POST /demo.
var demoNames = []string{"sweep", "direction", "brake", "monitor"}

// options are the parsed command-line flags.
type options struct {
	cfgPath string
	webPort int
	demo    string
	speed   int
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	demoName := flag.String("demo", "", "run a demo routine: sweep, direction, brake or monitor")
	speed := flag.Int("speed", 0, "override the demo speed (1 to max_duty)")
	flag.Parse()

	opts := options{cfgPath: *cfgPath, webPort: webPort.port(), demo: *demoName, speed: *speed}
	if opts.webPort == 0 && opts.demo == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -web and/or -demo")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("gobridge: %v", err)
	}
}

// run loads the configuration, brings the motor up in its safe state and
// serves the requested mode. The motor is stopped and disabled, and the
// GPIO driver closed, on every exit path.
func run(ctx context.Context, opts options) (err error) {
	if err := config.ValidateConfigPath(opts.cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if err := validateCLIOverrides(cfg, opts.demo, opts.speed); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	applyOverrides(cfg, opts.speed)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Initializing GPIO driver")
	debug.Value("GPIO driver", cfg.Defaults.Driver)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.Driver)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if cerr := gpioDriver.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing GPIO driver: %w", cerr))
		}
	}()

	debug.Step(2, "Initializing motor")
	debug.PrintStruct("Motor config", cfg.Motor)
	ctrl, err := motion.NewController(gpioDriver, cfg)
	if err != nil {
		return fmt.Errorf("build motor controller: %w", err)
	}
	defer func() {
		if serr := ctrl.SafeStop(); serr != nil && !errors.Is(serr, motor.ErrNotInitialized) {
			err = multierr.Append(err, fmt.Errorf("safe stop: %w", serr))
		}
	}()
	if err := ctrl.Initialize(); err != nil {
		return fmt.Errorf("initialize motor: %w", err)
	}
	debug.Summary("Motor ready (disabled)")
	debug.Info("Speed range ±%d, encoder: %t", cfg.Motor.MaxDuty, cfg.Encoder != nil)

	seq := demo.NewSequence(ctrl)
	params := demoParams(cfg)
	runDemo := func(ctx context.Context, name string) error {
		return seq.Run(ctx, name, params)
	}

	if opts.webPort > 0 {
		return serve(ctx, cfg, ctrl, runDemo, opts)
	}

	debug.Step(3, "Running demo "+opts.demo)
	if err := runDemo(ctx, opts.demo); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("demo %s failed: %w", opts.demo, err)
	}
	debug.Section("Demo Complete")
	return nil
}

// serve runs the web control surface until ctx is cancelled. With an
// encoder wired, a background sampler keeps the pulse count current. A
// -demo given alongside -web runs under the server's demo control, so the
// page can stop it. serve returns only once the sampler and any demo have
// finished touching the pins.
func serve(ctx context.Context, cfg *config.Config, ctrl *motor.Controller, runDemo web.RunDemoFunc, opts options) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	defer debug.SetOutput(os.Stdout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	panel := web.PanelConfig{
		MaxDuty:   cfg.MaxDuty(),
		DemoSpeed: cfg.Defaults.DemoSpeed,
		Demos:     demoNames,
		Encoder:   cfg.Encoder != nil,
	}
	srv := web.NewServer(fmt.Sprintf(":%d", opts.webPort), broadcaster, ctrl, runDemo, panel)

	var smp *sampler.Sampler
	if cfg.Encoder != nil {
		var err error
		if smp, err = sampler.New(ctrl, cfg.SampleInterval(), time.Second, nil); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	samplerErr := make(chan error, 1)
	if smp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samplerErr <- smp.Run(ctx)
		}()
	}

	// Server.Run waits for a running demo before returning.
	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- srv.Run(ctx)
	}()

	var err error
	serverDone := false
	if opts.demo != "" {
		if err = srv.StartDemo(opts.demo); err != nil {
			err = fmt.Errorf("start demo %s: %w", opts.demo, err)
		}
	}

	if err == nil {
		select {
		case serr := <-serverErr:
			serverDone = true
			if serr != nil {
				err = fmt.Errorf("web server: %w", serr)
			}
		case serr := <-samplerErr:
			// Encoder failure halts motion; the deferred SafeStop in run does the rest.
			if serr != nil {
				err = fmt.Errorf("encoder sampler: %w", serr)
			}
		}
	}

	cancel()
	wg.Wait()
	if !serverDone {
		if serr := <-serverErr; serr != nil {
			err = multierr.Append(err, fmt.Errorf("web server: %w", serr))
		}
	}
	return err
}

// demoParams maps the configuration to demo routine parameters.
func demoParams(cfg *config.Config) demo.Params {
	p := demo.Params{
		Speed:          int16(cfg.Defaults.DemoSpeed),
		StepDuration:   cfg.StepDuration(),
		SampleInterval: cfg.SampleInterval(),
	}
	if cfg.Encoder != nil {
		p.PPR = uint32(cfg.Encoder.PPR)
	}
	return p
}

// validateCLIOverrides checks the -demo name and a non-zero -speed.
// Zero speed means "use config default".
func validateCLIOverrides(cfg *config.Config, demoName string, speed int) error {
	if demoName != "" {
		known := false
		for _, d := range demoNames {
			known = known || d == demoName
		}
		if !known {
			return fmt.Errorf("demo must be one of %v, got %q", demoNames, demoName)
		}
		if demoName == "monitor" && cfg.Encoder == nil {
			return fmt.Errorf("demo monitor needs an encoder section in the config")
		}
	}
	if speed != 0 && (speed < 1 || speed > cfg.Motor.MaxDuty) {
		return fmt.Errorf("speed must be between 1 and %d, got %d", cfg.Motor.MaxDuty, speed)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only a non-zero speed is applied.
func applyOverrides(cfg *config.Config, speed int) {
	if speed > 0 {
		cfg.Defaults.DemoSpeed = speed
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
