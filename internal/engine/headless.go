package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/audio"
)

// HeadlessDriver paces the graph with a wall-clock ticker, one 20ms frame per
// tick, and feeds silence as input. It stands in for hardware on servers
// and in CI.
type HeadlessDriver struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeadlessDriver creates a ticker-paced driver.
func NewHeadlessDriver(logger zerolog.Logger) *HeadlessDriver {
	return &HeadlessDriver{logger: logger.With().Str("driver", "headless").Logger()}
}

func (d *HeadlessDriver) Start(p Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, p, d.done)
	d.logger.Debug().Msg("headless device started")
	return nil
}

func (d *HeadlessDriver) run(ctx context.Context, p Processor, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	out := make([]int16, audio.FrameSamples)
	in := make([]int16, audio.FrameSize*audio.RecordChannels)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.Process(out, in)
	}
}

func (d *HeadlessDriver) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	d.logger.Debug().Msg("headless device stopped")
	return nil
}

func (d *HeadlessDriver) Close() error {
	return d.Stop()
}
