package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV reports a file that go-audio cannot parse as RIFF/WAVE.
var ErrNotWAV = errors.New("not a WAV file")

// Info contains header metadata about a WAV file.
type Info struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	Frames      int
}

// Duration returns Frames / SampleRate in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// ReadInfo reads the WAV header of path without decoding the samples.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("seek pcm chunk %s: %w", path, err)
	}
	return infoOf(dec), nil
}

func infoOf(dec *wav.Decoder) Info {
	info := Info{
		SampleRate:  int(dec.SampleRate),
		NumChannels: int(dec.NumChans),
		BitDepth:    int(dec.BitDepth),
	}
	if bytesPerFrame := info.NumChannels * info.BitDepth / 8; bytesPerFrame > 0 {
		info.Frames = int(dec.PCMLen()) / bytesPerFrame
	}
	return info
}

// LoadAsset decodes path into the graph's sample format. WAV files at the
// target rate are decoded in-process; anything else goes through ffmpeg.
func LoadAsset(path string, sampleRate, channels int) (*Asset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}

	info, samples, err := readWAV(path)
	if err == nil && info.SampleRate == sampleRate {
		return &Asset{
			Path:         path,
			Samples:      Remix(samples, info.NumChannels, channels),
			Channels:     channels,
			SampleRate:   sampleRate,
			Frames:       len(samples) / info.NumChannels,
			SourceRate:   info.SampleRate,
			SourceFrames: info.Frames,
		}, nil
	}

	decoded, derr := DecodeFile(path, sampleRate, channels)
	if derr != nil {
		if err != nil {
			return nil, fmt.Errorf("load asset %s: %w (wav: %v)", path, derr, err)
		}
		return nil, fmt.Errorf("load asset %s: %w", path, derr)
	}
	frames := len(decoded) / channels
	a := &Asset{
		Path:         path,
		Samples:      decoded[:frames*channels],
		Channels:     channels,
		SampleRate:   sampleRate,
		Frames:       frames,
		SourceRate:   sampleRate,
		SourceFrames: frames,
	}
	if err == nil {
		// keep the on-disk frame count so durations match the file header
		a.SourceRate = info.SampleRate
		a.SourceFrames = info.Frames
	}
	return a, nil
}

func readWAV(path string) (Info, []int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Info{}, nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, nil, fmt.Errorf("decode pcm: %w", err)
	}
	info := infoOf(dec)
	if info.NumChannels == 0 {
		return Info{}, nil, ErrNotWAV
	}

	var shift uint
	switch info.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return Info{}, nil, fmt.Errorf("unsupported bit depth %d", info.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v >> shift)
	}
	samples = samples[:len(samples)/info.NumChannels*info.NumChannels]
	info.Frames = len(samples) / info.NumChannels
	return info, samples, nil
}

// WriteWAV saves interleaved 16-bit samples as a WAV file, creating parent
// directories as needed.
func WriteWAV(path string, samples []int16, sampleRate, channels int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	enc := wav.NewEncoder(out, sampleRate, BitDepth, channels, 1)
	if err := enc.Write(IntBuffer(samples, sampleRate, channels)); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	return enc.Close()
}

// IntBuffer wraps int16 samples for the go-audio encoder.
func IntBuffer(samples []int16, sampleRate, channels int) *goaudio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: BitDepth,
	}
}
