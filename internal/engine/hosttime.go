// Package engine holds the shared rendering graph, the recording pipeline and
// the hardware clock both are scheduled against.
package engine

import (
	"math"
	"time"
)

// HostTime is a reading of the hardware render clock in nanoseconds. It is
// derived from the number of frames the device has rendered, so it only
// advances while the graph is running.
type HostTime int64

// DefaultBaseDelay is the lead time given to every scheduling command so the
// recorder and all player nodes are armed before the hardware reaches the
// target instant.
const DefaultBaseDelay = 100 * time.Millisecond

// HostTimeForSeconds converts seconds to host-clock units.
func HostTimeForSeconds(s float64) HostTime {
	return HostTime(math.Round(s * float64(time.Second)))
}

// Seconds returns t in seconds.
func (t HostTime) Seconds() float64 {
	return float64(t) / float64(time.Second)
}

// Add returns t shifted by s seconds.
func (t HostTime) Add(s float64) HostTime {
	return t + HostTimeForSeconds(s)
}

// FrameAt returns the hardware frame index at which t falls.
func FrameAt(t HostTime, sampleRate int) int64 {
	sec, ns := int64(t)/int64(time.Second), int64(t)%int64(time.Second)
	return sec*int64(sampleRate) + ns*int64(sampleRate)/int64(time.Second)
}

// HostTimeAt returns the host time of a hardware frame index, rounded up so
// that FrameAt(HostTimeAt(f)) == f.
func HostTimeAt(frame int64, sampleRate int) HostTime {
	sr := int64(sampleRate)
	sec, rem := frame/sr, frame%sr
	return HostTime(sec*int64(time.Second) + (rem*int64(time.Second)+sr-1)/sr)
}

// StartTimes is a synchronized pair of start instants derived from a single
// clock sample.
type StartTimes struct {
	RecordAt HostTime
	PlayAt   HostTime
}

// ComputeStartTimes anchors playback baseDelay seconds after now and delays
// the recorder a further delta seconds, so that what the performer hears
// through the output path lines up with what the input path captures.
// RecordAt - PlayAt == delta for any now and baseDelay.
func ComputeStartTimes(now HostTime, baseDelay, delta float64) StartTimes {
	playAt := now.Add(baseDelay)
	return StartTimes{
		RecordAt: playAt.Add(delta),
		PlayAt:   playAt,
	}
}
