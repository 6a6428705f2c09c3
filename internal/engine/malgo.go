package engine

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/audio"
)

// MalgoDriver runs the graph on a duplex miniaudio device. Playback and
// capture share one callback, so both sides see the same hardware clock.
type MalgoDriver struct {
	sampleRate int
	outCh      int
	inCh       int
	logger     zerolog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	out []int16
	in  []int16
}

// NewMalgoDriver initializes the miniaudio context. The device itself is
// opened on Start.
func NewMalgoDriver(logger zerolog.Logger) (*MalgoDriver, error) {
	l := logger.With().Str("driver", "malgo").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		l.Debug().Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoDriver{
		sampleRate: audio.SampleRate,
		outCh:      audio.Channels,
		inCh:       audio.RecordChannels,
		logger:     l,
		ctx:        ctx,
	}, nil
}

func (d *MalgoDriver) Start(p Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return ErrDriverClosed
	}
	if d.device != nil {
		return nil
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(d.outCh)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.inCh)
	cfg.SampleRate = uint32(d.sampleRate)
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			d.process(p, pOutput, pInput, int(frameCount))
		},
		Stop: func() {
			d.logger.Warn().Msg("audio device stopped")
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init duplex device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start duplex device: %w", err)
	}
	d.device = device
	d.logger.Info().
		Int("sample_rate", d.sampleRate).
		Int("out_channels", d.outCh).
		Int("in_channels", d.inCh).
		Msg("audio device started")
	return nil
}

// process runs on the miniaudio thread.
func (d *MalgoDriver) process(p Processor, pOutput, pInput []byte, frames int) {
	outLen := frames * d.outCh
	inLen := frames * d.inCh
	if cap(d.out) < outLen {
		d.out = make([]int16, outLen)
	}
	if cap(d.in) < inLen {
		d.in = make([]int16, inLen)
	}
	out, in := d.out[:outLen], d.in[:inLen]

	for i := range in {
		if 2*i+1 < len(pInput) {
			in[i] = int16(binary.LittleEndian.Uint16(pInput[2*i:]))
		} else {
			in[i] = 0
		}
	}

	p.Process(out, in)

	for i, s := range out {
		if 2*i+1 >= len(pOutput) {
			break
		}
		binary.LittleEndian.PutUint16(pOutput[2*i:], uint16(s))
	}
}

func (d *MalgoDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil
	}
	err := d.device.Stop()
	d.device.Uninit()
	d.device = nil
	if err != nil {
		return fmt.Errorf("stop duplex device: %w", err)
	}
	return nil
}

func (d *MalgoDriver) Close() error {
	err := d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return err
}
