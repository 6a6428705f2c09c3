package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/satindergrewal/overdub/internal/settings"
	"github.com/satindergrewal/overdub/internal/track"
)

type nopNotifier struct{}

func (nopNotifier) ProgressUpdated(float64) {}
func (nopNotifier) PlaybackFinished()       {}
func (nopNotifier) DurationChanged(float64) {}

type nopPoller struct{}

func (nopPoller) Start(time.Duration) {}
func (nopPoller) Stop()               {}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

// ToggleOverdub starts recording on focused while every other track plays,
// or stops a running overdub.
func (o *Orchestrator) ToggleOverdub(focused int) error {
	if o.recording {
		if focused != o.boundTrack {
			return fmt.Errorf("overdub on track %d while recording %d: %w", focused, o.boundTrack, ErrEngineBusy)
		}
		err := o.StopRecording(focused)
		o.StopPlaying()
		if err != nil {
			o.UpdateTotalDuration()
		}
		return err
	}
	if o.playing {
		return fmt.Errorf("overdub during playback: %w", ErrEngineBusy)
	}

	if err := o.PrepareToRecord(focused); err != nil {
		return err
	}
	if err := o.PrepareForPlayback(); err != nil {
		o.releaseRecorder()
		return err
	}
	st := o.StartTimes()
	if err := o.StartRecording(focused, st.RecordAt); err != nil {
		return err
	}
	o.StartPlayback(st.PlayAt, focused)
	o.notifier.ProgressUpdated(0)
	return nil
}

// TogglePlayback pauses a running session or resumes from the playhead.
func (o *Orchestrator) TogglePlayback() error {
	if o.recording {
		return fmt.Errorf("playback toggle while recording: %w", ErrEngineBusy)
	}
	if o.playing {
		o.PausePlaying()
		return nil
	}
	return o.ResumePlaying()
}

// SkipBy moves the playhead by seconds. A running session continues from
// the new position.
func (o *Orchestrator) SkipBy(seconds float64) error {
	return o.Relocate(o.currentTime + seconds)
}

// Rewind moves the playhead to the start.
func (o *Orchestrator) Rewind() error {
	return o.Relocate(0)
}

// Relocate moves the playhead to a position. A running session continues
// from it.
func (o *Orchestrator) Relocate(to float64) error {
	if o.recording {
		return fmt.Errorf("seek while recording: %w", ErrEngineBusy)
	}
	wasPlaying := o.playing
	if wasPlaying {
		o.PausePlaying()
	}
	o.SeekTo(to)
	if wasPlaying {
		return o.ResumePlaying()
	}
	return nil
}

// ToggleMute flips the mute flag of a track and returns the new value.
func (o *Orchestrator) ToggleMute(id int) (bool, error) {
	t, err := o.track(id)
	if err != nil {
		return false, err
	}
	if t.IsMuted() {
		err = t.Unmute()
	} else {
		err = t.Mute()
	}
	return t.IsMuted(), err
}

// SetVolume sets a track's gain.
func (o *Orchestrator) SetVolume(id int, v float64) error {
	t, err := o.track(id)
	if err != nil {
		return err
	}
	return t.UpdateVolume(v)
}

// ResetTrack deletes the audio of a slot.
func (o *Orchestrator) ResetTrack(id int) error {
	t, err := o.track(id)
	if err != nil {
		return err
	}
	if o.boundTrack == id {
		return fmt.Errorf("reset track %d: %w", id, ErrEngineBusy)
	}
	err = t.Reset()
	o.UpdateTotalDuration()
	return err
}

// CheckConvertible reports whether a track has a finished take that can be
// sent for conversion.
func (o *Orchestrator) CheckConvertible(id int) error {
	t, err := o.track(id)
	if err != nil {
		return err
	}
	if s := t.State(); o.boundTrack == id || (s != track.HasContent && s != track.Playing) {
		return fmt.Errorf("convert track %d in %s: %w", id, s, track.ErrInvalidState)
	}
	return nil
}

// UseConversion switches a track to a converted rendition.
func (o *Orchestrator) UseConversion(id, modelID, pitchShift int) error {
	t, err := o.track(id)
	if err != nil {
		return err
	}
	if t.State() == track.Playing {
		return fmt.Errorf("switch variant of track %d: %w", id, track.ErrAlreadyPlaying)
	}
	if err := t.UseConversion(modelID, pitchShift); err != nil {
		return err
	}
	o.UpdateTotalDuration()
	return nil
}

// UseOriginal switches a track back to its recorded take.
func (o *Orchestrator) UseOriginal(id int) error {
	t, err := o.track(id)
	if err != nil {
		return err
	}
	if t.State() == track.Playing {
		return fmt.Errorf("switch variant of track %d: %w", id, track.ErrAlreadyPlaying)
	}
	if err := t.UseOriginal(); err != nil {
		return err
	}
	o.UpdateTotalDuration()
	return nil
}

// DeleteProject stops everything, empties every slot and forgets the
// session settings.
func (o *Orchestrator) DeleteProject() error {
	if o.recording {
		return fmt.Errorf("delete project while recording: %w", ErrEngineBusy)
	}
	o.releaseRecorder()
	if o.playing {
		o.StopPlaying()
	}

	var errs []error
	for _, t := range o.tracks {
		if err := t.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	if o.store != nil {
		if err := o.store.DeleteSession(settings.KeySyncDelta); err != nil {
			errs = append(errs, err)
		}
	}
	o.delta = 0
	o.UpdateTotalDuration()
	o.logger.Info().Str("project", o.projectID).Msg("project deleted")
	return errors.Join(errs...)
}

// Snapshot returns the current session status.
func (o *Orchestrator) Snapshot() Status {
	s := Status{
		CurrentTime:   o.currentTime,
		TotalDuration: o.totalDuration,
		Delta:         o.delta,
		Playing:       o.playing,
		Recording:     o.recording,
		Tracks:        make([]track.Info, 0, len(o.tracks)),
	}
	if o.recording {
		s.RecordingTrack = o.boundTrack
	}
	for _, t := range o.tracks {
		s.Tracks = append(s.Tracks, t.Snapshot())
	}
	return s
}
