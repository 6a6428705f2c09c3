// Package orchestrator schedules recording and playback of every track
// against the shared graph clock and tracks the playhead.
package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/engine"
	"github.com/satindergrewal/overdub/internal/settings"
	"github.com/satindergrewal/overdub/internal/track"
)

var (
	ErrEngineBusy      = errors.New("engine busy")
	ErrSlotIneligible  = errors.New("slot not eligible for recording")
	ErrHardwareStart   = errors.New("audio hardware failed to start")
	ErrRecordingFailed = errors.New("recording failed")
	ErrUnknownTrack    = errors.New("unknown track")
)

// Notifier receives playhead and duration events. Calls are fire-and-forget.
type Notifier interface {
	ProgressUpdated(currentTime float64)
	PlaybackFinished()
	DurationChanged(totalDuration float64)
}

// Poller invokes Tick periodically between Start and Stop.
type Poller interface {
	Start(interval time.Duration)
	Stop()
}

// Graph is the shared rendering graph.
type Graph interface {
	Start() error
	Stop() error
	Running() bool
	Now() engine.HostTime
	SampleRate() int
}

// Recorder is the single recording pipeline.
type Recorder interface {
	Prepare(path string) error
	RecordAt(at engine.HostTime) error
	Stop() error
	Recording() bool
	Prepared() bool
	Err() error
}

// Options configures an Orchestrator.
type Options struct {
	Tracks       []*track.Track
	Graph        Graph
	Recorder     Recorder
	Notifier     Notifier
	Poller       Poller
	Store        settings.Store
	ProjectID    string
	BaseDelay    time.Duration
	PollInterval time.Duration
	// Delta is used until a value has been persisted.
	Delta  float64
	Logger zerolog.Logger
}

// Status is a point-in-time view of the session.
type Status struct {
	CurrentTime    float64      `json:"current_time"`
	TotalDuration  float64      `json:"total_duration"`
	Delta          float64      `json:"delta"`
	Playing        bool         `json:"playing"`
	Recording      bool         `json:"recording"`
	RecordingTrack int          `json:"recording_track,omitempty"`
	Tracks         []track.Info `json:"tracks"`
}

// Orchestrator owns the graph and the recorder on behalf of the tracks. It
// is not safe for concurrent use; see Controller.
type Orchestrator struct {
	tracks   []*track.Track
	graph    Graph
	recorder Recorder
	notifier Notifier
	poller   Poller
	store    settings.Store
	logger   zerolog.Logger

	projectID    string
	baseDelay    float64
	pollInterval time.Duration

	currentTime   float64
	totalDuration float64
	resumeOffset  float64
	delta         float64
	seeking       bool

	playing    bool // playback session active
	boundTrack int  // track the recorder is prepared for, 0 if none
	recording  bool
}

// New creates an orchestrator and computes the initial total duration.
func New(opts Options) *Orchestrator {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = engine.DefaultBaseDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	o := &Orchestrator{
		tracks:       slices.Clone(opts.Tracks),
		graph:        opts.Graph,
		recorder:     opts.Recorder,
		notifier:     opts.Notifier,
		poller:       opts.Poller,
		store:        opts.Store,
		logger:       opts.Logger.With().Str("component", "orchestrator").Logger(),
		projectID:    opts.ProjectID,
		baseDelay:    opts.BaseDelay.Seconds(),
		pollInterval: opts.PollInterval,
		delta:        opts.Delta,
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.poller == nil {
		o.poller = nopPoller{}
	}
	slices.SortFunc(o.tracks, func(a, b *track.Track) int { return a.ID() - b.ID() })
	if o.store != nil {
		o.delta = settings.SessionFloat(o.store, settings.KeySyncDelta, opts.Delta)
	}
	o.totalDuration = o.maxDuration()
	return o
}

func (o *Orchestrator) track(id int) (*track.Track, error) {
	for _, t := range o.tracks {
		if t.ID() == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("track %d: %w", id, ErrUnknownTrack)
}

// Track returns the slot with the given id.
func (o *Orchestrator) Track(id int) (*track.Track, error) { return o.track(id) }

func (o *Orchestrator) CurrentTime() float64   { return o.currentTime }
func (o *Orchestrator) TotalDuration() float64 { return o.totalDuration }
func (o *Orchestrator) IsPlaying() bool        { return o.playing }
func (o *Orchestrator) IsRecording() bool      { return o.recording }
func (o *Orchestrator) Delta() float64         { return o.delta }

// SetDelta changes the record/playback compensation and persists it.
func (o *Orchestrator) SetDelta(d float64) error {
	o.delta = d
	if o.store == nil {
		return nil
	}
	if err := settings.SetSessionFloat(o.store, settings.KeySyncDelta, d); err != nil {
		return fmt.Errorf("persist delta: %w", err)
	}
	return nil
}

// StartTimes samples the graph clock once and derives both start instants
// from that sample.
func (o *Orchestrator) StartTimes() engine.StartTimes {
	return engine.ComputeStartTimes(o.graph.Now(), o.baseDelay, o.delta)
}

// PrepareForPlayback opens every unmuted track with content and starts the
// graph if anything was connected.
func (o *Orchestrator) PrepareForPlayback() error {
	if o.playing {
		return fmt.Errorf("prepare playback: %w", ErrEngineBusy)
	}

	connected := 0
	for _, t := range o.tracks {
		if t.State() != track.HasContent || t.IsMuted() {
			continue
		}
		if err := t.PrepareForPlayback(); err != nil {
			o.logger.Warn().Err(err).Int("track", t.ID()).Msg("track not prepared")
			continue
		}
		connected++
	}
	if connected == 0 {
		return nil
	}
	return o.startGraph()
}

func (o *Orchestrator) startGraph() error {
	if o.graph.Running() {
		return nil
	}
	if err := o.graph.Start(); err != nil {
		o.logger.Error().Err(err).Msg("graph failed to start")
		return fmt.Errorf("%w: %w", ErrHardwareStart, err)
	}
	return nil
}

// PrepareToRecord binds the recorder to an empty slot.
func (o *Orchestrator) PrepareToRecord(trackID int) error {
	t, err := o.track(trackID)
	if err != nil {
		return err
	}
	if o.boundTrack != 0 || o.recorder.Prepared() {
		return fmt.Errorf("prepare track %d: %w", trackID, ErrEngineBusy)
	}
	if t.State() != track.Empty {
		return fmt.Errorf("prepare track %d (%s): %w", trackID, t.State(), ErrSlotIneligible)
	}
	wasRunning := o.graph.Running()
	if err := o.startGraph(); err != nil {
		return err
	}
	if err := o.recorder.Prepare(t.OriginalPath()); err != nil {
		if !wasRunning && !o.playing {
			if stopErr := o.graph.Stop(); stopErr != nil {
				o.logger.Warn().Err(stopErr).Msg("graph stop failed")
			}
		}
		if errors.Is(err, engine.ErrRecorderBusy) {
			return fmt.Errorf("prepare track %d: %w", trackID, ErrEngineBusy)
		}
		return fmt.Errorf("%w: %w", ErrHardwareStart, err)
	}
	o.boundTrack = trackID
	o.logger.Debug().Int("track", trackID).Msg("recorder bound")
	return nil
}

// StartRecording arms the recorder at host time at. The track enters
// Recording as soon as the recorder is armed.
func (o *Orchestrator) StartRecording(trackID int, at engine.HostTime) error {
	t, err := o.track(trackID)
	if err != nil {
		return err
	}
	if o.boundTrack != trackID || o.recording {
		return fmt.Errorf("start recording track %d: %w", trackID, track.ErrNotPrepared)
	}
	if err := o.recorder.RecordAt(at); err != nil {
		o.releaseRecorder()
		return fmt.Errorf("%w: %w", ErrHardwareStart, err)
	}
	if err := t.BeginRecording(); err != nil {
		o.releaseRecorder()
		return err
	}
	o.recording = true
	o.logger.Info().Int("track", trackID).Float64("at", at.Seconds()).Msg("recording started")
	return nil
}

// releaseRecorder unbinds a recorder that never produced a take.
func (o *Orchestrator) releaseRecorder() {
	if o.boundTrack == 0 {
		return
	}
	path := ""
	if t, err := o.track(o.boundTrack); err == nil && t.State() == track.Empty {
		path = t.OriginalPath()
	}
	if err := o.recorder.Stop(); err != nil &&
		!errors.Is(err, engine.ErrRecorderNotPrepared) && !errors.Is(err, engine.ErrEmptyTake) {
		o.logger.Warn().Err(err).Msg("recorder release failed")
	}
	if path != "" {
		removeQuietly(path)
	}
	o.boundTrack = 0
}

// StopRecording finalizes the take. On failure the slot goes back to Empty.
func (o *Orchestrator) StopRecording(trackID int) error {
	t, err := o.track(trackID)
	if err != nil {
		return err
	}
	if !o.recording || o.boundTrack != trackID {
		return fmt.Errorf("stop recording track %d: %w", trackID, track.ErrInvalidState)
	}

	stopErr := o.recorder.Stop()
	o.recording = false
	o.boundTrack = 0
	if stopErr != nil {
		o.logger.Error().Err(stopErr).Int("track", trackID).Msg("recording failed")
		if err := t.AbortRecording(); err != nil {
			o.logger.Warn().Err(err).Msg("abort recording")
		}
		return fmt.Errorf("%w: %w", ErrRecordingFailed, stopErr)
	}
	if err := t.FinishRecording(); err != nil {
		return fmt.Errorf("%w: %w", ErrRecordingFailed, err)
	}
	o.logger.Info().Int("track", trackID).Msg("recording stopped")
	o.UpdateTotalDuration()
	return nil
}

func (o *Orchestrator) failRecording(cause error) {
	o.logger.Error().Err(cause).Int("track", o.boundTrack).Msg("recording failed mid-take")
	t, _ := o.track(o.boundTrack)
	_ = o.recorder.Stop()
	o.recording = false
	o.boundTrack = 0
	if t != nil {
		if err := t.AbortRecording(); err != nil {
			o.logger.Warn().Err(err).Msg("abort recording")
		}
	}
}

// StartPlayback schedules every prepared track except skip at host time at,
// from the top of the timeline. skip is 0 to schedule every track.
func (o *Orchestrator) StartPlayback(at engine.HostTime, skip int) {
	for _, t := range o.tracks {
		if t.ID() == skip || t.State() != track.HasContent || t.IsMuted() {
			continue
		}
		t.ScheduleToPlay(at)
	}
	o.currentTime = 0
	o.resumeOffset = 0
	o.playing = true
	o.poller.Start(o.pollInterval)
}

// StopPlayback halts every playing track and the poll without moving the
// playhead.
func (o *Orchestrator) StopPlayback() {
	for _, t := range o.tracks {
		t.Stop()
	}
	o.poller.Stop()
	o.playing = false
}

// PausePlaying stops rendering and remembers the playhead. Assets stay open.
func (o *Orchestrator) PausePlaying() {
	o.StopPlayback()
	o.resumeOffset = o.currentTime
	if !o.recording {
		if err := o.graph.Stop(); err != nil {
			o.logger.Warn().Err(err).Msg("graph stop failed")
		}
	}
	o.logger.Debug().Float64("at", o.currentTime).Msg("paused")
}

// ResumePlaying continues from the playhead. Tracks shorter than the
// playhead stay silent.
func (o *Orchestrator) ResumePlaying() error {
	if o.playing {
		return fmt.Errorf("resume: %w", ErrEngineBusy)
	}
	if o.currentTime >= o.totalDuration {
		o.StopPlaying()
		return nil
	}
	if err := o.PrepareForPlayback(); err != nil {
		return err
	}

	st := o.StartTimes()
	for _, t := range o.tracks {
		if t.State() != track.HasContent || t.IsMuted() || !t.Prepared() {
			continue
		}
		if d, ok := t.AudioDuration(); ok && d > o.currentTime {
			t.SeekAndSchedulePlayback(st.PlayAt, o.currentTime)
		}
	}
	o.resumeOffset = o.currentTime
	o.playing = true
	o.poller.Start(o.pollInterval)
	o.logger.Debug().Float64("from", o.currentTime).Msg("resumed")
	return nil
}

// StopPlaying ends the session, rewinds to zero and releases every asset.
func (o *Orchestrator) StopPlaying() {
	o.StopPlayback()
	for _, t := range o.tracks {
		t.Release()
	}
	o.currentTime = 0
	o.resumeOffset = 0
	if !o.recording {
		if err := o.graph.Stop(); err != nil {
			o.logger.Warn().Err(err).Msg("graph stop failed")
		}
	}
	o.notifier.PlaybackFinished()
	o.logger.Debug().Msg("playback finished")
}

// SeekTo moves the playhead, clamped to the timeline. It does not start
// playback.
func (o *Orchestrator) SeekTo(t float64) {
	o.seeking = true
	c := clamp(t, 0, o.totalDuration)
	o.currentTime = c
	o.resumeOffset = c
	o.seeking = false
	o.notifier.ProgressUpdated(c)
}

// UpdateTotalDuration recomputes the timeline length from the tracks.
func (o *Orchestrator) UpdateTotalDuration() {
	o.totalDuration = o.maxDuration()
	o.currentTime = clamp(o.currentTime, 0, o.totalDuration)
	o.resumeOffset = clamp(o.resumeOffset, 0, o.totalDuration)
	o.notifier.DurationChanged(o.totalDuration)
}

func (o *Orchestrator) maxDuration() float64 {
	total := 0.0
	for _, t := range o.tracks {
		if s := t.State(); s != track.HasContent && s != track.Playing {
			continue
		}
		if d, ok := t.AudioDuration(); ok && d > total {
			total = d
		}
	}
	return total
}

// Tick advances the playhead from the render clock of a playing track.
func (o *Orchestrator) Tick() {
	if o.seeking {
		return
	}
	if o.recording {
		if err := o.recorder.Err(); err != nil {
			o.failRecording(err)
		}
	}
	if !o.playing {
		return
	}

	var (
		elapsed float64
		found   bool
		pending bool
	)
	sr := o.graph.SampleRate()
	for _, t := range o.tracks {
		if t.State() != track.Playing {
			continue
		}
		if rt, ok := t.Node().RenderTime(sr); ok {
			elapsed, found = rt, true
			break
		}
		if t.Node().Pending() {
			pending = true
		}
	}

	switch {
	case found:
		o.currentTime = o.resumeOffset + elapsed
	case pending:
		o.currentTime = o.resumeOffset
	default:
		o.currentTime += o.pollInterval.Seconds()
	}
	o.currentTime = clamp(o.currentTime, 0, o.totalDuration)
	o.notifier.ProgressUpdated(o.currentTime)

	if o.currentTime >= o.totalDuration && !o.recording {
		o.StopPlaying()
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
