package engine

import (
	"sync"

	"github.com/satindergrewal/overdub/internal/audio"
)

// PlayerNode renders one buffer into the mixer starting at a scheduled host
// time. Commands come from the control goroutine; render is called from the
// audio callback.
type PlayerNode struct {
	mu        sync.Mutex
	samples   []int16
	channels  int
	startAt   HostTime
	fromFrame int
	gain      float64
	scheduled bool

	// clock position after the last render pass, -1 before the first one
	lastClock int64
	startSeen int64
}

// NewPlayerNode returns an idle node at unity gain.
func NewPlayerNode() *PlayerNode {
	return &PlayerNode{gain: 1, lastClock: -1, startSeen: -1}
}

// Schedule arms the node to begin rendering samples at the given host time,
// starting fromFrame frames into the buffer. Any previous schedule is
// replaced.
func (n *PlayerNode) Schedule(samples []int16, channels int, at HostTime, fromFrame int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.samples = samples
	n.channels = channels
	n.startAt = at
	n.fromFrame = fromFrame
	n.scheduled = true
	n.lastClock = -1
	n.startSeen = -1
}

// Stop halts rendering immediately and discards the schedule.
func (n *PlayerNode) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = false
	n.samples = nil
	n.lastClock = -1
}

// SetGain changes the node volume; it applies to the next render pass.
func (n *PlayerNode) SetGain(g float64) {
	n.mu.Lock()
	n.gain = audio.ClampGain(g)
	n.mu.Unlock()
}

// Gain returns the current node volume.
func (n *PlayerNode) Gain() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gain
}

// IsPlaying reports whether the node holds a live schedule.
func (n *PlayerNode) IsPlaying() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scheduled
}

// Pending reports a live schedule whose start the hardware has not reached.
func (n *PlayerNode) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scheduled && n.startSeen < 0
}

// RenderTime returns how many seconds the node has rendered since its
// scheduled start. The count keeps running through silence once the buffer
// is exhausted. ok is false until the start instant has been rendered.
func (n *PlayerNode) RenderTime(sampleRate int) (seconds float64, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.scheduled || n.startSeen < 0 || n.lastClock < 0 {
		return 0, false
	}
	return float64(n.lastClock-n.startSeen) / float64(sampleRate), true
}

// render mixes this node's contribution for frames [clock, clock+frames) of
// the hardware clock into acc, which is interleaved with outChannels.
func (n *PlayerNode) render(acc []int32, clock int64, frames, outChannels, sampleRate int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.scheduled {
		return
	}

	end := clock + int64(frames)
	startFrame := FrameAt(n.startAt, sampleRate)
	if end <= startFrame {
		return
	}
	if n.startSeen < 0 {
		n.startSeen = startFrame
		if startFrame < clock {
			// start instant already passed when the schedule landed
			n.startSeen = clock
		}
	}
	n.lastClock = end

	first := int64(0)
	if n.startSeen > clock {
		first = n.startSeen - clock
	}
	total := len(n.samples) / max(n.channels, 1)
	src := n.fromFrame + int(clock+first-n.startSeen)
	count := min(frames-int(first), total-src)
	if count <= 0 {
		return
	}
	chunk := n.samples[src*n.channels : (src+count)*n.channels]
	if n.channels != outChannels {
		chunk = audio.Remix(chunk, n.channels, outChannels)
	}
	audio.MixInto(acc[int(first)*outChannels:], chunk, n.gain)
}
