package engine

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/overdub/internal/audio"
)

// Mixer sums every connected PlayerNode into the output buffer and owns the
// frame counter that serves as the hardware clock.
type Mixer struct {
	sampleRate int
	channels   int

	clock atomic.Int64 // frames rendered since the graph was created

	mu    sync.Mutex
	nodes []*PlayerNode
	acc   []int32
}

// NewMixer creates a mixer producing interleaved output with the given format.
func NewMixer(sampleRate, channels int) *Mixer {
	return &Mixer{sampleRate: sampleRate, channels: channels}
}

// Connect attaches a node. Connecting an attached node is a no-op.
func (m *Mixer) Connect(n *PlayerNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.nodes, n) {
		m.nodes = append(m.nodes, n)
	}
}

// Disconnect detaches a node.
func (m *Mixer) Disconnect(n *PlayerNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = slices.DeleteFunc(m.nodes, func(x *PlayerNode) bool { return x == n })
}

// Connected reports whether n is attached.
func (m *Mixer) Connected(n *PlayerNode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.nodes, n)
}

// NodeCount returns the number of attached nodes.
func (m *Mixer) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Clock returns the number of frames rendered so far.
func (m *Mixer) Clock() int64 {
	return m.clock.Load()
}

// Now returns the current hardware time.
func (m *Mixer) Now() HostTime {
	return HostTimeAt(m.clock.Load(), m.sampleRate)
}

// Render fills out (interleaved, mixer channels wide) with the next block
// and advances the clock by the number of frames written.
func (m *Mixer) Render(out []int16) {
	frames := len(out) / m.channels
	clock := m.clock.Load()

	m.mu.Lock()
	if cap(m.acc) < len(out) {
		m.acc = make([]int32, len(out))
	}
	acc := m.acc[:len(out)]
	clear(acc)
	for _, n := range m.nodes {
		n.render(acc, clock, frames, m.channels, m.sampleRate)
	}
	m.mu.Unlock()

	for i, v := range acc {
		out[i] = audio.Clip16(v)
	}
	m.clock.Add(int64(frames))
}
