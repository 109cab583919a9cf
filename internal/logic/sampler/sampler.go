package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/logic/kinematics"
)

// Encoder is the part of a motor controller the sampler drives.
type Encoder interface {
	ReadEncoder() error
	PulseCount() (int32, error)
}

// Reading is one periodic report of the encoder position.
type Reading struct {
	Count           int32         // position relative to the last reset
	Delta           int32         // change since the previous report
	PulsesPerSecond float64       // Delta over the report period
	Elapsed         time.Duration // time since Run started
}

// Sampler polls an encoder at a fixed interval and reports the position
// at a slower rate.
type Sampler struct {
	enc         Encoder
	interval    time.Duration
	reportEvery time.Duration
	onReport    func(Reading)
}

// New creates a sampler. onReport may be nil; reports are always logged.
func New(enc Encoder, interval, reportEvery time.Duration, onReport func(Reading)) (*Sampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sample interval must be > 0, got %v", interval)
	}
	if reportEvery < interval {
		reportEvery = interval
	}
	return &Sampler{
		enc:         enc,
		interval:    interval,
		reportEvery: reportEvery,
		onReport:    onReport,
	}, nil
}

// Run samples until ctx is cancelled, returning nil, or until a sample
// fails, returning that error.
func (s *Sampler) Run(ctx context.Context) error {
	sampleTicker := time.NewTicker(s.interval)
	defer sampleTicker.Stop()
	reportTicker := time.NewTicker(s.reportEvery)
	defer reportTicker.Stop()

	start := time.Now()
	lastReport := start
	last, err := s.enc.PulseCount()
	if err != nil {
		return err
	}
	debug.Verbose("Encoder sampling every %v, reporting every %v", s.interval, s.reportEvery)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-sampleTicker.C:
			if err := s.enc.ReadEncoder(); err != nil {
				return fmt.Errorf("sample encoder: %w", err)
			}

		case now := <-reportTicker.C:
			count, err := s.enc.PulseCount()
			if err != nil {
				return err
			}
			r := Reading{
				Count:           count,
				Delta:           count - last,
				PulsesPerSecond: kinematics.PulsesPerSecond(count-last, now.Sub(lastReport)),
				Elapsed:         now.Sub(start),
			}
			last, lastReport = count, now
			debug.Pulses(r.Count, r.Delta)
			if s.onReport != nil {
				s.onReport(r)
			}
		}
	}
}
