package engine

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/audio"
)

// Graph is the one rendering graph shared by every track and the recorder.
// Its Mixer clock is the hardware clock all start times are computed from.
type Graph struct {
	mixer    *Mixer
	recorder *CaptureRecorder
	driver   Driver
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool

	frames  chan []int16
	pending []int16 // tap remainder, touched only by Process
}

// NewGraph builds a graph in the engine's output format. recorder may be nil
// for playback-only graphs.
func NewGraph(driver Driver, recorder *CaptureRecorder, logger zerolog.Logger) *Graph {
	return &Graph{
		mixer:    NewMixer(audio.SampleRate, audio.Channels),
		recorder: recorder,
		driver:   driver,
		logger:   logger.With().Str("component", "graph").Logger(),
		frames:   make(chan []int16, 50),
	}
}

// Start runs the graph on its driver. Starting a running graph is a no-op.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}
	if err := g.driver.Start(g); err != nil {
		return fmt.Errorf("start graph: %w", err)
	}
	g.running = true
	g.logger.Info().Msg("graph started")
	return nil
}

// Stop halts the driver. The clock keeps its value.
func (g *Graph) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}
	g.running = false
	if err := g.driver.Stop(); err != nil {
		return fmt.Errorf("stop graph: %w", err)
	}
	g.logger.Info().Msg("graph stopped")
	return nil
}

// Close stops the graph and releases the driver.
func (g *Graph) Close() error {
	if err := g.Stop(); err != nil {
		return err
	}
	return g.driver.Close()
}

func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Now samples the hardware clock.
func (g *Graph) Now() HostTime { return g.mixer.Now() }

func (g *Graph) SampleRate() int { return audio.SampleRate }

func (g *Graph) Connect(n *PlayerNode)    { g.mixer.Connect(n) }
func (g *Graph) Disconnect(n *PlayerNode) { g.mixer.Disconnect(n) }

// Mixer exposes the underlying mixer.
func (g *Graph) Mixer() *Mixer { return g.mixer }

// Frames returns a channel of 20ms stereo frames of the rendered mix.
// Frames are dropped when the reader falls behind.
func (g *Graph) Frames() <-chan []int16 { return g.frames }

// Process renders one period. The captured input is handed to the recorder
// tagged with the clock value of the period's first frame.
func (g *Graph) Process(out, in []int16) {
	clock := g.mixer.Clock()
	g.mixer.Render(out)
	if g.recorder != nil {
		g.recorder.Capture(clock, in)
	}
	g.tap(out)
}

func (g *Graph) tap(out []int16) {
	g.pending = append(g.pending, out...)
	for len(g.pending) >= audio.FrameSamples {
		frame := make([]int16, audio.FrameSamples)
		copy(frame, g.pending)
		g.pending = g.pending[audio.FrameSamples:]
		select {
		case g.frames <- frame:
		default:
		}
	}
}
