package engine

import (
	"errors"
	"sync"
)

// Processor is called by a Driver once per hardware period. out is the
// interleaved playback buffer to fill; in holds the captured input for the
// same period.
type Processor interface {
	Process(out, in []int16)
}

// Driver connects a Processor to an audio device.
type Driver interface {
	Start(p Processor) error
	Stop() error
	Close() error
}

// ErrDriverClosed is returned when starting a driver after Close.
var ErrDriverClosed = errors.New("driver closed")

// ManualDriver renders only when told to. It drives the graph in tests and
// offline bounces, where wall-clock pacing is unwanted.
type ManualDriver struct {
	mu              sync.Mutex
	proc            Processor
	outChannels     int
	inChannels      int
	input           func(frames int) []int16
	startErr        error
	closed          bool
	lastOut         []int16
	renderedPeriods int
}

// NewManualDriver returns a driver with the given output and input widths.
func NewManualDriver(outChannels, inChannels int) *ManualDriver {
	return &ManualDriver{outChannels: outChannels, inChannels: inChannels}
}

// FailStart makes the next Start calls return err (nil clears it).
func (d *ManualDriver) FailStart(err error) {
	d.mu.Lock()
	d.startErr = err
	d.mu.Unlock()
}

// SetInput installs a generator for captured input. Without one the input
// is silence.
func (d *ManualDriver) SetInput(fn func(frames int) []int16) {
	d.mu.Lock()
	d.input = fn
	d.mu.Unlock()
}

func (d *ManualDriver) Start(p Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	if d.startErr != nil {
		return d.startErr
	}
	d.proc = p
	return nil
}

func (d *ManualDriver) Stop() error {
	d.mu.Lock()
	d.proc = nil
	d.mu.Unlock()
	return nil
}

func (d *ManualDriver) Close() error {
	d.mu.Lock()
	d.proc = nil
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Running reports whether a processor is attached.
func (d *ManualDriver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.proc != nil
}

// Advance renders frames in one period. It is a no-op while stopped, like a
// halted device.
func (d *ManualDriver) Advance(frames int) []int16 {
	d.mu.Lock()
	p, input := d.proc, d.input
	d.mu.Unlock()
	if p == nil {
		return nil
	}

	out := make([]int16, frames*d.outChannels)
	var in []int16
	if input != nil {
		in = input(frames)
	} else {
		in = make([]int16, frames*d.inChannels)
	}
	p.Process(out, in)

	d.mu.Lock()
	d.lastOut = out
	d.renderedPeriods++
	d.mu.Unlock()
	return out
}

// AdvanceSeconds renders s seconds in periods of at most period frames.
func (d *ManualDriver) AdvanceSeconds(s float64, sampleRate, period int) {
	remaining := int(s * float64(sampleRate))
	for remaining > 0 {
		n := min(period, remaining)
		d.Advance(n)
		remaining -= n
	}
}
