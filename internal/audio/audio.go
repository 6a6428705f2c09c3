package audio

import "time"

const (
	SampleRate     = 48000
	Channels       = 2 // graph output (stereo mix)
	RecordChannels = 1 // microphone take
	BitDepth       = 16
	FrameDuration  = 20 * time.Millisecond
	FrameSize      = 960                  // samples per channel per 20ms frame
	FrameSamples   = FrameSize * Channels // total interleaved samples per frame
	FrameBytes     = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Asset is a decoded audio file held in the graph's sample format.
type Asset struct {
	Path       string
	Samples    []int16 // interleaved, Channels wide
	Channels   int
	SampleRate int
	Frames     int

	// SourceRate and SourceFrames describe the file as stored on disk.
	SourceRate   int
	SourceFrames int
}

// Duration returns the length of the file in seconds (frame count / sample rate).
func (a *Asset) Duration() float64 {
	if a == nil || a.SourceRate == 0 {
		return 0
	}
	return float64(a.SourceFrames) / float64(a.SourceRate)
}
