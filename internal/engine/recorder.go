package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/smallnest/ringbuffer"

	"github.com/satindergrewal/overdub/internal/audio"
)

var (
	ErrRecorderBusy        = errors.New("recorder already prepared")
	ErrRecorderNotPrepared = errors.New("recorder not prepared")
	ErrCaptureOverrun      = errors.New("capture buffer overrun")
	ErrEmptyTake           = errors.New("no audio captured")
)

// ringSeconds is how much captured audio the ring holds before the writer
// must have drained it.
const ringSeconds = 2

// CaptureRecorder is the single recording pipeline. The audio callback
// pushes captured PCM into a ring buffer; a writer goroutine drains it into
// a WAV file.
type CaptureRecorder struct {
	sampleRate int
	channels   int
	logger     zerolog.Logger

	mu       sync.Mutex
	path     string
	file     *os.File
	enc      *wav.Encoder
	ring     *ringbuffer.RingBuffer
	prepared bool
	stop     chan struct{}
	done     chan struct{}
	writeErr error

	// read on the audio callback
	armed      atomic.Bool
	startFrame atomic.Int64
	overrun    atomic.Bool
	captured   atomic.Int64
}

// NewCaptureRecorder creates an idle recorder writing sampleRate/channels
// 16-bit WAV files.
func NewCaptureRecorder(sampleRate, channels int, logger zerolog.Logger) *CaptureRecorder {
	return &CaptureRecorder{
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With().Str("component", "recorder").Logger(),
	}
}

// Prepare creates the destination file and starts the writer. Capture does
// not begin until RecordAt.
func (r *CaptureRecorder) Prepare(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prepared {
		return ErrRecorderBusy
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}

	r.path = path
	r.file = f
	r.enc = wav.NewEncoder(f, r.sampleRate, audio.BitDepth, r.channels, 1)
	r.ring = ringbuffer.New(r.sampleRate * r.channels * 2 * ringSeconds)
	r.prepared = true
	r.writeErr = nil
	r.overrun.Store(false)
	r.captured.Store(0)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.writer(r.ring, r.enc, r.stop, r.done)

	r.logger.Debug().Str("path", path).Msg("recorder prepared")
	return nil
}

// RecordAt arms capture so the first recorded frame is the one rendered at
// host time at.
func (r *CaptureRecorder) RecordAt(at HostTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.prepared {
		return ErrRecorderNotPrepared
	}
	r.startFrame.Store(FrameAt(at, r.sampleRate))
	r.armed.Store(true)
	r.logger.Debug().Float64("at", at.Seconds()).Msg("recording armed")
	return nil
}

// Capture receives one period of input whose first frame is clockStart on
// the hardware clock. Called from the audio callback.
func (r *CaptureRecorder) Capture(clockStart int64, in []int16) {
	if !r.armed.Load() || len(in) == 0 {
		return
	}
	frames := int64(len(in) / r.channels)
	start := r.startFrame.Load()
	if clockStart+frames <= start {
		return
	}
	if start > clockStart {
		in = in[(start-clockStart)*int64(r.channels):]
	}

	r.mu.Lock()
	ring := r.ring
	r.mu.Unlock()
	if ring == nil {
		return
	}

	buf := audio.SamplesToBytes(in)
	n, err := ring.Write(buf)
	if err != nil || n < len(buf) {
		r.overrun.Store(true)
	}
	r.captured.Add(int64(n / 2 / r.channels))
}

func (r *CaptureRecorder) writer(ring *ringbuffer.RingBuffer, enc *wav.Encoder, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	frameBytes := 2 * r.channels
	buf := make([]byte, ring.Capacity())
	drain := func() {
		n := ring.Length()
		n -= n % frameBytes
		if n == 0 {
			return
		}
		n, _ = ring.Read(buf[:n])
		if r.failed() {
			return
		}
		samples := audio.BytesToSamples(buf[:n])
		if err := enc.Write(audio.IntBuffer(samples, r.sampleRate, r.channels)); err != nil {
			r.setWriteErr(fmt.Errorf("write recording: %w", err))
		}
	}

	for {
		select {
		case <-stop:
			drain()
			return
		case <-ticker.C:
			drain()
		}
	}
}

func (r *CaptureRecorder) failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeErr != nil
}

func (r *CaptureRecorder) setWriteErr(err error) {
	r.mu.Lock()
	if r.writeErr == nil {
		r.writeErr = err
		r.logger.Error().Err(err).Msg("recording writer failed")
	}
	r.mu.Unlock()
}

// Stop flushes pending audio, finalizes the WAV header and closes the file.
// The recorder is reset even when an error is returned.
func (r *CaptureRecorder) Stop() error {
	r.armed.Store(false)

	r.mu.Lock()
	if !r.prepared {
		r.mu.Unlock()
		return ErrRecorderNotPrepared
	}
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	errs := []error{r.writeErr}
	if r.overrun.Load() {
		errs = append(errs, ErrCaptureOverrun)
	}
	if err := r.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finalize recording: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recording: %w", err))
	}
	// the encoder only writes a header once it has seen a frame
	if r.captured.Load() == 0 {
		errs = append(errs, ErrEmptyTake)
	}

	r.logger.Debug().
		Str("path", r.path).
		Float64("seconds", float64(r.captured.Load())/float64(r.sampleRate)).
		Msg("recorder stopped")

	r.prepared = false
	r.file = nil
	r.enc = nil
	r.ring = nil
	r.path = ""
	r.stop, r.done = nil, nil
	return errors.Join(errs...)
}

// Recording reports whether capture is armed.
func (r *CaptureRecorder) Recording() bool {
	return r.armed.Load()
}

// Prepared reports whether a file is open for recording.
func (r *CaptureRecorder) Prepared() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepared
}

// Err returns the first failure seen while recording, if any.
func (r *CaptureRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	if r.prepared && r.overrun.Load() {
		return ErrCaptureOverrun
	}
	return nil
}
