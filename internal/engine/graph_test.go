package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/overdub/internal/audio"
)

func newManualGraph(rec *CaptureRecorder) (*Graph, *ManualDriver) {
	d := NewManualDriver(audio.Channels, audio.RecordChannels)
	return NewGraph(d, rec, zerolog.Nop()), d
}

func TestGraphStartIdempotent(t *testing.T) {
	g, d := newManualGraph(nil)
	require.NoError(t, g.Start())
	require.NoError(t, g.Start())
	assert.True(t, g.Running())
	assert.True(t, d.Running())

	require.NoError(t, g.Stop())
	assert.False(t, g.Running())
	assert.Nil(t, d.Advance(10))
}

func TestGraphStartFailure(t *testing.T) {
	g, d := newManualGraph(nil)
	boom := errors.New("no device")
	d.FailStart(boom)
	assert.ErrorIs(t, g.Start(), boom)
	assert.False(t, g.Running())
}

func TestGraphClockAdvancesOnlyWhenRendering(t *testing.T) {
	g, d := newManualGraph(nil)
	require.NoError(t, g.Start())
	d.AdvanceSeconds(0.5, audio.SampleRate, 512)
	assert.Equal(t, HostTimeForSeconds(0.5), g.Now())

	require.NoError(t, g.Stop())
	d.AdvanceSeconds(0.5, audio.SampleRate, 512)
	assert.Equal(t, HostTimeForSeconds(0.5), g.Now())
}

func TestGraphFramesAreTwentyMillis(t *testing.T) {
	g, d := newManualGraph(nil)
	n := NewPlayerNode()
	g.Connect(n)
	n.Schedule(constant(audio.SampleRate, 1, 123), 1, 0, 0)
	require.NoError(t, g.Start())

	// 3 periods of 700 frames = 2100 frames = 2 full frames plus a remainder
	for i := 0; i < 3; i++ {
		d.Advance(700)
	}
	require.Len(t, g.Frames(), 2)
	f := <-g.Frames()
	assert.Len(t, f, audio.FrameSamples)
	assert.Equal(t, int16(123), f[0])
}

func TestGraphRecordsAndPlaysAgainstOneClock(t *testing.T) {
	rec := NewCaptureRecorder(audio.SampleRate, audio.RecordChannels, zerolog.Nop())
	g, d := newManualGraph(rec)
	require.NoError(t, g.Start())
	d.AdvanceSeconds(0.2, audio.SampleRate, 480)

	// input carries a click at every frame the hardware renders at 0.4s
	clickFrame := FrameAt(HostTimeForSeconds(0.4), audio.SampleRate)
	clock := FrameAt(g.Now(), audio.SampleRate)
	d.SetInput(func(frames int) []int16 {
		in := make([]int16, frames)
		for i := range in {
			if clock+int64(i) == clickFrame {
				in[i] = 9999
			}
		}
		clock += int64(frames)
		return in
	})

	st := ComputeStartTimes(g.Now(), 0.1, 0.1)
	path := filepath.Join(t.TempDir(), "take.wav")
	require.NoError(t, rec.Prepare(path))
	require.NoError(t, rec.RecordAt(st.RecordAt))
	d.AdvanceSeconds(0.5, audio.SampleRate, 480)
	require.NoError(t, rec.Stop())

	a, err := audio.LoadAsset(path, audio.SampleRate, 1)
	require.NoError(t, err)
	require.NotEmpty(t, a.Samples)
	assert.Equal(t, int16(9999), a.Samples[0])
}

func TestHeadlessDriverPacesGraph(t *testing.T) {
	g := NewGraph(NewHeadlessDriver(zerolog.Nop()), nil, zerolog.Nop())
	require.NoError(t, g.Start())

	select {
	case frame := <-g.Frames():
		assert.Len(t, frame, audio.FrameSamples)
	case <-time.After(time.Second):
		t.Fatal("no frame rendered")
	}
	require.NoError(t, g.Close())

	stopped := g.Now()
	time.Sleep(3 * audio.FrameDuration)
	assert.Equal(t, stopped, g.Now(), "clock frozen after stop")
	assert.Greater(t, int64(stopped), int64(0))
}
