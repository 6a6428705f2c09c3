// Package track implements one recording slot: its audio asset, transport
// state, mute/volume and active variant.
package track

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/audio"
	"github.com/satindergrewal/overdub/internal/engine"
	"github.com/satindergrewal/overdub/internal/settings"
	"github.com/satindergrewal/overdub/internal/storage"
)

var (
	ErrMuted          = errors.New("track is muted")
	ErrAlreadyPlaying = errors.New("track is already playing")
	ErrAssetMissing   = errors.New("no audio for active variant")
	ErrNotPrepared    = errors.New("track asset not prepared")
	ErrInvalidState   = errors.New("invalid track state")
)

// State is the transport state of a slot.
type State int

const (
	Empty State = iota
	Recording
	HasContent
	Playing
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Recording:
		return "recording"
	case HasContent:
		return "has_content"
	case Playing:
		return "playing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Variant selects which rendition of the slot is played. The zero value is
// the original recording.
type Variant struct {
	ModelID    int `json:"model_id"`
	PitchShift int `json:"pitch_shift"`
}

// Original reports whether v is the recorded take.
func (v Variant) Original() bool { return v.ModelID == 0 }

// Connector is the borrowed handle a track uses to join the shared graph.
type Connector interface {
	Connect(n *engine.PlayerNode)
	Disconnect(n *engine.PlayerNode)
}

// Option configures a Track.
type Option func(*Track)

// WithGraph lets the track connect its node to g when prepared.
func WithGraph(g Connector) Option {
	return func(t *Track) { t.graph = g }
}

// WithFormat sets the sample format assets are decoded to.
func WithFormat(sampleRate, channels int) Option {
	return func(t *Track) {
		t.sampleRate = sampleRate
		t.channels = channels
	}
}

// Info is a point-in-time view of a track.
type Info struct {
	ID       int      `json:"id"`
	State    State    `json:"state"`
	Muted    bool     `json:"muted"`
	Volume   float64  `json:"volume"`
	Variant  Variant  `json:"variant"`
	Duration *float64 `json:"duration,omitempty"`
}

// Track is one slot. It is not safe for concurrent use; callers serialize
// access on a single control goroutine.
type Track struct {
	id        int
	projectID string
	layout    storage.Layout
	store     settings.Store
	graph     Connector
	logger    zerolog.Logger

	sampleRate int
	channels   int

	state   State
	muted   bool
	volume  float64
	variant Variant

	asset     *audio.Asset
	node      *engine.PlayerNode
	connected bool
}

// New restores slot id of projectID from store and the files on disk.
func New(id int, projectID string, layout storage.Layout, store settings.Store, logger zerolog.Logger, opts ...Option) *Track {
	t := &Track{
		id:         id,
		projectID:  projectID,
		layout:     layout,
		store:      store,
		logger:     logger.With().Str("component", "track").Int("track", id).Logger(),
		sampleRate: audio.SampleRate,
		channels:   audio.Channels,
		volume:     1,
		node:       engine.NewPlayerNode(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.muted = settings.Bool(store, projectID, id, settings.FieldMuted, false)
	t.volume = audio.ClampGain(settings.Float(store, projectID, id, settings.FieldVolume, 1))
	t.variant = Variant{
		ModelID:    settings.Int(store, projectID, id, settings.FieldModelID, 0),
		PitchShift: settings.Int(store, projectID, id, settings.FieldPitchShift, 0),
	}
	if !t.variant.Original() && !storage.Exists(t.ActivePath()) {
		t.logger.Warn().Int("model", t.variant.ModelID).Msg("converted variant missing, using original")
		t.variant = Variant{}
	}
	switch {
	case !t.variant.Original():
		t.state = HasContent
	case playableTake(t.OriginalPath()):
		t.state = HasContent
	case storage.Exists(t.OriginalPath()):
		// interrupted recording: the header is only written on close
		t.logger.Warn().Str("path", t.OriginalPath()).Msg("discarding unreadable take")
		if err := os.Remove(t.OriginalPath()); err != nil {
			t.logger.Warn().Err(err).Msg("remove unreadable take")
		}
	}
	t.node.SetGain(t.liveGain())
	return t
}

// playableTake reports whether path is a WAV file with at least one frame.
func playableTake(path string) bool {
	info, err := audio.ReadInfo(path)
	return err == nil && info.Frames > 0
}

func (t *Track) ID() int                  { return t.id }
func (t *Track) State() State             { return t.state }
func (t *Track) IsMuted() bool            { return t.muted }
func (t *Track) Volume() float64          { return t.volume }
func (t *Track) Variant() Variant         { return t.variant }
func (t *Track) Node() *engine.PlayerNode { return t.node }

// Prepared reports whether the active variant's asset is open.
func (t *Track) Prepared() bool { return t.asset != nil }

// OriginalPath is where the recorded take lives.
func (t *Track) OriginalPath() string {
	return t.layout.OriginalPath(t.projectID, t.id)
}

// ActivePath is the file of the active variant.
func (t *Track) ActivePath() string {
	if t.variant.Original() {
		return t.OriginalPath()
	}
	return t.layout.ConvertedPath(t.projectID, t.id, t.variant.ModelID, t.variant.PitchShift)
}

func (t *Track) liveGain() float64 {
	if t.muted {
		return 0
	}
	return t.volume
}

// PrepareForPlayback opens the active variant and joins the graph. It never
// changes the state.
func (t *Track) PrepareForPlayback() error {
	if t.muted {
		return ErrMuted
	}
	if t.state == Playing {
		return ErrAlreadyPlaying
	}
	path := t.ActivePath()
	if t.state != HasContent || !storage.Exists(path) {
		return fmt.Errorf("%s: %w", path, ErrAssetMissing)
	}

	if t.asset == nil || t.asset.Path != path {
		a, err := audio.LoadAsset(path, t.sampleRate, t.channels)
		if err != nil {
			return fmt.Errorf("load track %d: %w", t.id, err)
		}
		t.asset = a
		t.logger.Debug().Str("path", path).Float64("duration", a.Duration()).Msg("asset opened")
	}
	if t.graph != nil && !t.connected {
		t.graph.Connect(t.node)
		t.connected = true
	}
	return nil
}

// ScheduleToPlay starts rendering the asset from its beginning at host time
// at.
func (t *Track) ScheduleToPlay(at engine.HostTime) {
	t.schedule(at, 0)
}

// SeekAndSchedulePlayback starts rendering offset seconds into the asset at
// host time at. Offsets past the end are ignored.
func (t *Track) SeekAndSchedulePlayback(at engine.HostTime, offset float64) {
	if t.asset == nil {
		t.logger.Warn().Msg("seek on unprepared track ignored")
		return
	}
	frame := int(math.Round(offset * float64(t.asset.SampleRate)))
	if frame < 0 {
		frame = 0
	}
	if frame >= t.asset.Frames {
		t.logger.Debug().Float64("offset", offset).Msg("offset beyond asset, not scheduled")
		return
	}
	t.schedule(at, frame)
}

func (t *Track) schedule(at engine.HostTime, frame int) {
	switch {
	case t.muted:
		t.logger.Warn().Msg("track is muted, not scheduling")
		return
	case t.asset == nil:
		t.logger.Warn().Msg("track not prepared, not scheduling")
		return
	case t.state != HasContent:
		t.logger.Warn().Stringer("state", t.state).Msg("track cannot be scheduled")
		return
	}
	t.node.SetGain(t.liveGain())
	t.node.Schedule(t.asset.Samples, t.asset.Channels, at, frame)
	t.state = Playing
	t.logger.Debug().Float64("at", at.Seconds()).Int("frame", frame).Msg("scheduled")
}

// Stop halts rendering. The asset stays open for a later resume.
func (t *Track) Stop() {
	if t.state != Playing {
		return
	}
	t.node.Stop()
	t.state = HasContent
}

// Release drops the open asset and leaves the graph.
func (t *Track) Release() {
	t.Stop()
	t.asset = nil
	if t.graph != nil && t.connected {
		t.graph.Disconnect(t.node)
	}
	t.connected = false
}

func (t *Track) Mute() error {
	return t.setMuted(true)
}

func (t *Track) Unmute() error {
	return t.setMuted(false)
}

func (t *Track) setMuted(m bool) error {
	t.muted = m
	t.node.SetGain(t.liveGain())
	if err := settings.SetBool(t.store, t.projectID, t.id, settings.FieldMuted, m); err != nil {
		return fmt.Errorf("persist mute: %w", err)
	}
	return nil
}

// UpdateVolume sets the track gain. A playing node picks it up on the next
// render pass.
func (t *Track) UpdateVolume(v float64) error {
	t.volume = audio.ClampGain(v)
	if t.state == Playing {
		t.node.SetGain(t.liveGain())
	}
	if err := settings.SetFloat(t.store, t.projectID, t.id, settings.FieldVolume, t.volume); err != nil {
		return fmt.Errorf("persist volume: %w", err)
	}
	return nil
}

// Reset deletes every file of the slot and clears its persisted settings.
// Resetting an empty slot still clears the settings.
func (t *Track) Reset() error {
	if t.state == Recording {
		return fmt.Errorf("reset while recording: %w", ErrInvalidState)
	}
	t.Release()

	var errs []error
	if err := t.layout.RemoveTrackFiles(t.projectID, t.id); err != nil {
		errs = append(errs, fmt.Errorf("remove track files: %w", err))
	}
	for _, f := range []settings.Field{settings.FieldMuted, settings.FieldVolume, settings.FieldModelID, settings.FieldPitchShift} {
		if err := t.store.Delete(t.projectID, t.id, f); err != nil {
			errs = append(errs, err)
		}
	}

	t.muted = false
	t.volume = 1
	t.variant = Variant{}
	t.state = Empty
	t.node.SetGain(1)
	t.logger.Info().Msg("track reset")
	return errors.Join(errs...)
}

// UseConversion makes a cached converted rendition the active variant.
func (t *Track) UseConversion(modelID, pitchShift int) error {
	if modelID == 0 {
		return t.UseOriginal()
	}
	if t.state == Empty || t.state == Recording {
		return fmt.Errorf("use conversion in %s: %w", t.state, ErrInvalidState)
	}
	v := Variant{ModelID: modelID, PitchShift: pitchShift}
	path := t.layout.ConvertedPath(t.projectID, t.id, modelID, pitchShift)
	if !storage.Exists(path) {
		return fmt.Errorf("%s: %w", path, ErrAssetMissing)
	}

	t.variant = v
	t.dropAsset()
	if err := settings.SetInt(t.store, t.projectID, t.id, settings.FieldModelID, modelID); err != nil {
		return fmt.Errorf("persist variant: %w", err)
	}
	if err := settings.SetInt(t.store, t.projectID, t.id, settings.FieldPitchShift, pitchShift); err != nil {
		return fmt.Errorf("persist variant: %w", err)
	}
	t.logger.Info().Int("model", modelID).Int("pitch", pitchShift).Msg("using conversion")
	return nil
}

// UseOriginal makes the recorded take the active variant.
func (t *Track) UseOriginal() error {
	if t.state == Recording {
		return fmt.Errorf("use original while recording: %w", ErrInvalidState)
	}
	t.variant = Variant{}
	t.dropAsset()
	if err := t.store.Delete(t.projectID, t.id, settings.FieldModelID); err != nil {
		return fmt.Errorf("persist variant: %w", err)
	}
	if err := t.store.Delete(t.projectID, t.id, settings.FieldPitchShift); err != nil {
		return fmt.Errorf("persist variant: %w", err)
	}
	return nil
}

// dropAsset forgets the open asset without touching a playing node, which
// keeps its own reference to the samples.
func (t *Track) dropAsset() {
	t.asset = nil
}

// AudioDuration returns the length of the active variant in seconds,
// opening it if needed.
func (t *Track) AudioDuration() (float64, bool) {
	path := t.ActivePath()
	if t.asset != nil && t.asset.Path == path {
		return t.asset.Duration(), true
	}
	if !storage.Exists(path) {
		return 0, false
	}
	if info, err := audio.ReadInfo(path); err == nil {
		return info.Duration(), true
	}
	a, err := audio.LoadAsset(path, t.sampleRate, t.channels)
	if err != nil {
		t.logger.Warn().Err(err).Msg("cannot read duration")
		return 0, false
	}
	t.asset = a
	return a.Duration(), true
}

// BeginRecording marks the slot as the target of an armed recorder.
func (t *Track) BeginRecording() error {
	if t.state != Empty {
		return fmt.Errorf("record on %s slot: %w", t.state, ErrInvalidState)
	}
	t.state = Recording
	return nil
}

// FinishRecording accepts the take written to OriginalPath. A missing or
// unreadable take leaves the slot Empty.
func (t *Track) FinishRecording() error {
	if t.state != Recording {
		return fmt.Errorf("finish recording in %s: %w", t.state, ErrInvalidState)
	}
	t.variant = Variant{}
	t.asset = nil
	if !playableTake(t.OriginalPath()) {
		t.state = Empty
		if err := os.Remove(t.OriginalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn().Err(err).Msg("remove unreadable take")
		}
		return fmt.Errorf("%s: %w", t.OriginalPath(), ErrAssetMissing)
	}
	t.state = HasContent
	t.logger.Info().Msg("recording finished")
	return nil
}

// AbortRecording discards a failed take and returns the slot to Empty.
func (t *Track) AbortRecording() error {
	if t.state != Recording {
		return fmt.Errorf("abort recording in %s: %w", t.state, ErrInvalidState)
	}
	t.state = Empty
	t.asset = nil
	if err := os.Remove(t.OriginalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove partial take: %w", err)
	}
	t.logger.Warn().Msg("recording aborted")
	return nil
}

// Snapshot returns the current track info.
func (t *Track) Snapshot() Info {
	info := Info{
		ID:      t.id,
		State:   t.state,
		Muted:   t.muted,
		Volume:  t.volume,
		Variant: t.variant,
	}
	if t.state == HasContent || t.state == Playing {
		if d, ok := t.AudioDuration(); ok {
			info.Duration = &d
		}
	}
	return info
}
