package track

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/overdub/internal/audio"
	"github.com/satindergrewal/overdub/internal/engine"
	"github.com/satindergrewal/overdub/internal/settings"
	"github.com/satindergrewal/overdub/internal/storage"
)

const project = "proj"

type fixture struct {
	layout storage.Layout
	store  *settings.MemoryStore
	mixer  *engine.Mixer
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		layout: storage.Layout{Root: t.TempDir()},
		store:  settings.NewMemoryStore(),
		mixer:  engine.NewMixer(audio.SampleRate, audio.Channels),
	}
}

func (f *fixture) track(id int) *Track {
	return New(id, project, f.layout, f.store, zerolog.Nop(), WithGraph(f.mixer))
}

// writeTake writes a mono take whose sample i has value i%1000+1.
func writeTake(t *testing.T, path string, seconds float64) {
	t.Helper()
	n := int(seconds * audio.SampleRate)
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i%1000 + 1)
	}
	require.NoError(t, audio.WriteWAV(path, s, audio.SampleRate, 1))
}

func (f *fixture) withTake(t *testing.T, id int, seconds float64) *Track {
	t.Helper()
	writeTake(t, f.layout.OriginalPath(project, id), seconds)
	return f.track(id)
}

func TestNewEmptySlot(t *testing.T) {
	f := newFixture(t)
	tr := f.track(1)
	assert.Equal(t, Empty, tr.State())
	assert.False(t, tr.IsMuted())
	assert.Equal(t, 1.0, tr.Volume())
	assert.True(t, tr.Variant().Original())
}

func TestNewRestoresSettings(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.SetBool(f.store, project, 2, settings.FieldMuted, true))
	require.NoError(t, settings.SetFloat(f.store, project, 2, settings.FieldVolume, 0.3))
	tr := f.withTake(t, 2, 0.1)

	assert.Equal(t, HasContent, tr.State())
	assert.True(t, tr.IsMuted())
	assert.Equal(t, 0.3, tr.Volume())
	assert.Equal(t, 0.0, tr.Node().Gain())
}

func TestNewFallsBackWhenConversionVanished(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.SetInt(f.store, project, 1, settings.FieldModelID, 9))
	tr := f.withTake(t, 1, 0.1)
	assert.True(t, tr.Variant().Original())
	assert.Equal(t, HasContent, tr.State())
}

func TestPrepareForPlaybackFailures(t *testing.T) {
	f := newFixture(t)

	empty := f.track(1)
	assert.ErrorIs(t, empty.PrepareForPlayback(), ErrAssetMissing)
	assert.Equal(t, Empty, empty.State())

	muted := f.withTake(t, 2, 0.1)
	require.NoError(t, muted.Mute())
	assert.ErrorIs(t, muted.PrepareForPlayback(), ErrMuted)
	assert.Equal(t, HasContent, muted.State())
	assert.False(t, muted.Prepared())

	playing := f.withTake(t, 3, 0.1)
	require.NoError(t, playing.PrepareForPlayback())
	playing.ScheduleToPlay(0)
	require.Equal(t, Playing, playing.State())
	assert.ErrorIs(t, playing.PrepareForPlayback(), ErrAlreadyPlaying)
	assert.Equal(t, Playing, playing.State())
}

func TestPrepareConnectsAndReusesAsset(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())
	assert.True(t, f.mixer.Connected(tr.Node()))
	asset := tr.asset

	require.NoError(t, tr.PrepareForPlayback())
	assert.Same(t, asset, tr.asset)
	assert.Equal(t, 1, f.mixer.NodeCount())
	assert.Equal(t, HasContent, tr.State())
}

func TestScheduleRendersFromStart(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())
	tr.ScheduleToPlay(engine.HostTimeAt(10, audio.SampleRate))
	assert.Equal(t, Playing, tr.State())

	out := make([]int16, 20*audio.Channels)
	f.mixer.Render(out)
	assert.Equal(t, int16(0), out[9*2])
	assert.Equal(t, int16(1), out[10*2])
	assert.Equal(t, int16(1), out[10*2+1])
	assert.Equal(t, int16(2), out[11*2])
}

func TestScheduleNoopWhenUnprepared(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	tr.ScheduleToPlay(0)
	assert.Equal(t, HasContent, tr.State())
	assert.False(t, tr.Node().IsPlaying())
}

func TestSeekAndSchedule(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())

	// beyond the end: ignored
	tr.SeekAndSchedulePlayback(0, 0.2)
	assert.Equal(t, HasContent, tr.State())

	// 500 frames in: sample value 501
	tr.SeekAndSchedulePlayback(0, 500.0/audio.SampleRate)
	assert.Equal(t, Playing, tr.State())
	out := make([]int16, 2*audio.Channels)
	f.mixer.Render(out)
	assert.Equal(t, int16(501), out[0])
	assert.Equal(t, int16(502), out[2])
}

func TestStop(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	tr.Stop()
	assert.Equal(t, HasContent, tr.State())

	require.NoError(t, tr.PrepareForPlayback())
	tr.ScheduleToPlay(0)
	tr.Stop()
	assert.Equal(t, HasContent, tr.State())
	assert.False(t, tr.Node().IsPlaying())
	assert.True(t, tr.Prepared())

	tr.Release()
	assert.False(t, tr.Prepared())
	assert.False(t, f.mixer.Connected(tr.Node()))
}

func TestMuteDoesNotChangeState(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())
	tr.ScheduleToPlay(0)

	require.NoError(t, tr.Mute())
	assert.Equal(t, Playing, tr.State())
	assert.Equal(t, 0.0, tr.Node().Gain())
	assert.True(t, settings.Bool(f.store, project, 1, settings.FieldMuted, false))

	require.NoError(t, tr.Unmute())
	assert.Equal(t, 1.0, tr.Node().Gain())
	assert.False(t, settings.Bool(f.store, project, 1, settings.FieldMuted, true))
}

func TestUpdateVolume(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())
	tr.ScheduleToPlay(0)

	require.NoError(t, tr.UpdateVolume(0.4))
	assert.Equal(t, 0.4, tr.Node().Gain())
	assert.Equal(t, 0.4, settings.Float(f.store, project, 1, settings.FieldVolume, 1))
	assert.True(t, tr.Node().IsPlaying())

	require.NoError(t, tr.UpdateVolume(3))
	assert.Equal(t, 1.0, tr.Volume())
	require.NoError(t, tr.UpdateVolume(-1))
	assert.Equal(t, 0.0, tr.Volume())
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	writeTake(t, f.layout.ConvertedPath(project, 1, 5, 0), 0.1)
	writeTake(t, f.layout.ConvertedPath(project, 1, 5, 3), 0.1)
	require.NoError(t, tr.UseConversion(5, 3))
	require.NoError(t, tr.Mute())
	require.NoError(t, tr.UpdateVolume(0.2))

	require.NoError(t, tr.Reset())
	assertReset(t, f, tr)

	// idempotent
	require.NoError(t, tr.Reset())
	assertReset(t, f, tr)
}

func TestResetEmptySlotClearsStrayFlags(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, settings.SetBool(f.store, project, 3, settings.FieldMuted, true))
	require.NoError(t, settings.SetFloat(f.store, project, 3, settings.FieldVolume, 0.1))
	tr := f.track(3)
	require.Equal(t, Empty, tr.State())

	require.NoError(t, tr.Reset())
	assertReset(t, f, tr)
	require.NoError(t, tr.Reset())
	assertReset(t, f, tr)
}

func assertReset(t *testing.T, f *fixture, tr *Track) {
	t.Helper()
	assert.Equal(t, Empty, tr.State())
	assert.False(t, tr.IsMuted())
	assert.Equal(t, 1.0, tr.Volume())
	assert.True(t, tr.Variant().Original())
	assert.False(t, storage.Exists(tr.OriginalPath()))
	paths, err := f.layout.ConvertedPaths(project, tr.ID())
	require.NoError(t, err)
	assert.Empty(t, paths)
	for _, field := range []settings.Field{settings.FieldMuted, settings.FieldVolume, settings.FieldModelID, settings.FieldPitchShift} {
		_, ok, _ := f.store.Get(project, tr.ID(), field)
		assert.False(t, ok, "field %s still persisted", field)
	}
}

func TestResetWhilePlaying(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	require.NoError(t, tr.PrepareForPlayback())
	tr.ScheduleToPlay(0)
	require.NoError(t, tr.Reset())
	assert.False(t, tr.Node().IsPlaying())
	assert.False(t, f.mixer.Connected(tr.Node()))
}

func TestVariantSwitching(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)

	assert.ErrorIs(t, tr.UseConversion(7, 0), ErrAssetMissing)
	assert.True(t, tr.Variant().Original())

	writeTake(t, f.layout.ConvertedPath(project, 1, 7, -2), 0.3)
	require.NoError(t, tr.PrepareForPlayback())
	require.NoError(t, tr.UseConversion(7, -2))
	assert.Equal(t, Variant{ModelID: 7, PitchShift: -2}, tr.Variant())
	assert.Equal(t, f.layout.ConvertedPath(project, 1, 7, -2), tr.ActivePath())
	assert.False(t, tr.Prepared())
	assert.Equal(t, 7, settings.Int(f.store, project, 1, settings.FieldModelID, 0))

	d, ok := tr.AudioDuration()
	require.True(t, ok)
	assert.InDelta(t, 0.3, d, 1e-9)

	// survives a restart
	again := f.track(1)
	assert.Equal(t, Variant{ModelID: 7, PitchShift: -2}, again.Variant())

	require.NoError(t, tr.UseOriginal())
	assert.True(t, tr.Variant().Original())
	_, ok, _ = f.store.Get(project, 1, settings.FieldModelID)
	assert.False(t, ok)
}

func TestUseConversionOnEmptySlot(t *testing.T) {
	f := newFixture(t)
	tr := f.track(1)
	assert.ErrorIs(t, tr.UseConversion(1, 0), ErrInvalidState)
}

func TestAudioDuration(t *testing.T) {
	f := newFixture(t)
	_, ok := f.track(1).AudioDuration()
	assert.False(t, ok)

	tr := f.withTake(t, 2, 0.25)
	d, ok := tr.AudioDuration()
	require.True(t, ok)
	assert.InDelta(t, 0.25, d, 1e-9)
}

func TestRecordingTransitions(t *testing.T) {
	f := newFixture(t)
	full := f.withTake(t, 1, 0.1)
	assert.ErrorIs(t, full.BeginRecording(), ErrInvalidState)
	assert.Equal(t, HasContent, full.State())

	tr := f.track(2)
	assert.ErrorIs(t, tr.FinishRecording(), ErrInvalidState)
	require.NoError(t, tr.BeginRecording())
	assert.Equal(t, Recording, tr.State())
	assert.ErrorIs(t, tr.Reset(), ErrInvalidState)

	writeTake(t, tr.OriginalPath(), 0.1)
	require.NoError(t, tr.FinishRecording())
	assert.Equal(t, HasContent, tr.State())
}

func TestAbortRecordingRemovesPartialTake(t *testing.T) {
	f := newFixture(t)
	tr := f.track(1)
	require.NoError(t, tr.BeginRecording())
	writeTake(t, tr.OriginalPath(), 0.05)

	require.NoError(t, tr.AbortRecording())
	assert.Equal(t, Empty, tr.State())
	assert.False(t, storage.Exists(tr.OriginalPath()))
}

func TestFinishRecordingWithoutFile(t *testing.T) {
	f := newFixture(t)
	tr := f.track(1)
	require.NoError(t, tr.BeginRecording())
	assert.ErrorIs(t, tr.FinishRecording(), ErrAssetMissing)
	assert.Equal(t, Empty, tr.State())
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	info := f.withTake(t, 1, 0.5).Snapshot()
	assert.Equal(t, 1, info.ID)
	assert.Equal(t, HasContent, info.State)
	require.NotNil(t, info.Duration)
	assert.InDelta(t, 0.5, *info.Duration, 1e-9)

	assert.Nil(t, f.track(2).Snapshot().Duration)
}

func TestFinishRecordingRejectsUnreadableTake(t *testing.T) {
	f := newFixture(t)
	tr := f.track(1)
	require.NoError(t, tr.BeginRecording())
	// what an encoder leaves behind when it never saw a frame
	require.NoError(t, os.WriteFile(tr.OriginalPath(), make([]byte, 8), 0o644))

	assert.ErrorIs(t, tr.FinishRecording(), ErrAssetMissing)
	assert.Equal(t, Empty, tr.State())
	assert.False(t, storage.Exists(tr.OriginalPath()))
	require.NoError(t, tr.BeginRecording(), "slot can record again")
}

func TestNewDiscardsInterruptedTake(t *testing.T) {
	f := newFixture(t)
	path := f.layout.OriginalPath(project, 1)
	require.NoError(t, os.WriteFile(path, []byte("RIFF\x00\x00"), 0o644))

	tr := f.track(1)
	assert.Equal(t, Empty, tr.State())
	assert.False(t, storage.Exists(path))
	_, ok := tr.AudioDuration()
	assert.False(t, ok)
}

func TestNewKeepsReadableTake(t *testing.T) {
	f := newFixture(t)
	tr := f.withTake(t, 1, 0.1)
	assert.Equal(t, HasContent, tr.State())
	assert.True(t, storage.Exists(tr.OriginalPath()))
}
