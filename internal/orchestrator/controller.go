package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/track"
)

// ErrControllerStopped is returned for commands submitted after Run exits.
var ErrControllerStopped = errors.New("controller stopped")

// Converter produces a converted rendition of a track and returns its
// local path.
type Converter interface {
	ConvertAudio(ctx context.Context, trackID, modelID, pitchShift int) (string, error)
}

// Controller is the single control goroutine. Every Orchestrator call and
// every poll tick runs on it, one at a time.
type Controller struct {
	orch      *Orchestrator
	converter Converter
	logger    zerolog.Logger

	cmds chan func()
	done chan struct{}

	// owned by the Run goroutine
	ticker   *time.Ticker
	interval time.Duration
}

// NewController builds the orchestrator with the controller as its poller.
// converter may be nil when conversions are disabled.
func NewController(opts Options, converter Converter) *Controller {
	c := &Controller{
		converter: converter,
		logger:    opts.Logger.With().Str("component", "controller").Logger(),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
	}
	opts.Poller = c
	c.orch = New(opts)
	return c
}

// Start begins periodic ticks. Called on the control goroutine.
func (c *Controller) Start(interval time.Duration) {
	if c.ticker != nil && c.interval == interval {
		return
	}
	c.Stop()
	c.ticker = time.NewTicker(interval)
	c.interval = interval
}

// Stop ends periodic ticks. Called on the control goroutine.
func (c *Controller) Stop() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
}

// Run processes commands and ticks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.Stop()

	c.logger.Info().Msg("control loop started")
	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.C
		}
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case cmd := <-c.cmds:
			cmd()
		case <-tick:
			c.orch.Tick()
		}
	}
}

func (c *Controller) shutdown() {
	o := c.orch
	if o.IsRecording() {
		if err := o.StopRecording(o.boundTrack); err != nil {
			c.logger.Warn().Err(err).Msg("recording lost on shutdown")
		}
	}
	o.releaseRecorder()
	if o.IsPlaying() {
		o.StopPlaying()
	}
	c.logger.Info().Msg("control loop stopped")
}

// Do runs fn on the control goroutine and returns its error.
func (c *Controller) Do(fn func(*Orchestrator) error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- func() { reply <- fn(c.orch) }:
	case <-c.done:
		return ErrControllerStopped
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrControllerStopped
	}
}

// Status returns a snapshot taken on the control goroutine.
func (c *Controller) Status() (Status, error) {
	var s Status
	err := c.Do(func(o *Orchestrator) error {
		s = o.Snapshot()
		return nil
	})
	return s, err
}

// Convert runs a conversion without holding the control goroutine, then
// switches the track to the result. A failed conversion changes nothing.
func (c *Controller) Convert(ctx context.Context, trackID, modelID, pitchShift int) error {
	if c.converter == nil {
		return errors.New("conversion not configured")
	}
	if err := c.Do(func(o *Orchestrator) error { return o.CheckConvertible(trackID) }); err != nil {
		return err
	}

	path, err := c.converter.ConvertAudio(ctx, trackID, modelID, pitchShift)
	if err != nil {
		c.logger.Warn().Err(err).Int("track", trackID).Int("model", modelID).Msg("conversion failed")
		return fmt.Errorf("convert track %d: %w", trackID, err)
	}
	c.logger.Info().Int("track", trackID).Str("path", path).Msg("conversion ready")
	err = c.Do(func(o *Orchestrator) error {
		return o.UseConversion(trackID, modelID, pitchShift)
	})
	if errors.Is(err, track.ErrInvalidState) {
		// the take was reset or replaced while converting
		removeQuietly(path)
	}
	return err
}
