// Package settings persists per-track and per-session preferences as typed
// key-value pairs.
package settings

import (
	"strconv"
)

// Field names a per-track setting.
type Field string

const (
	FieldMuted      Field = "muted"
	FieldVolume     Field = "volume"
	FieldModelID    Field = "model_id"
	FieldPitchShift Field = "pitch_shift"
)

const (
	// KeySyncDelta stores the record/playback sync offset in seconds.
	KeySyncDelta = "sync_delta"
	// KeyProjectID remembers the active project across restarts.
	KeyProjectID = "project_id"
)

// Store is a string key-value store scoped by (project, track, field), plus
// a flat session namespace.
type Store interface {
	Get(projectID string, trackID int, f Field) (string, bool, error)
	Set(projectID string, trackID int, f Field, value string) error
	Delete(projectID string, trackID int, f Field) error
	GetSession(key string) (string, bool, error)
	SetSession(key, value string) error
	DeleteSession(key string) error
}

// Bool reads a boolean field, returning def when it is unset or unreadable.
func Bool(s Store, projectID string, trackID int, f Field, def bool) bool {
	v, ok, err := s.Get(projectID, trackID, f)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Float reads a float field, returning def when it is unset or unreadable.
func Float(s Store, projectID string, trackID int, f Field, def float64) float64 {
	v, ok, err := s.Get(projectID, trackID, f)
	if err != nil || !ok {
		return def
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return x
}

// Int reads an integer field, returning def when it is unset or unreadable.
func Int(s Store, projectID string, trackID int, f Field, def int) int {
	v, ok, err := s.Get(projectID, trackID, f)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func SetBool(s Store, projectID string, trackID int, f Field, v bool) error {
	return s.Set(projectID, trackID, f, strconv.FormatBool(v))
}

func SetFloat(s Store, projectID string, trackID int, f Field, v float64) error {
	return s.Set(projectID, trackID, f, strconv.FormatFloat(v, 'g', -1, 64))
}

func SetInt(s Store, projectID string, trackID int, f Field, v int) error {
	return s.Set(projectID, trackID, f, strconv.Itoa(v))
}

// SessionFloat reads a float session key, returning def when unset.
func SessionFloat(s Store, key string, def float64) float64 {
	v, ok, err := s.GetSession(key)
	if err != nil || !ok {
		return def
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return x
}

func SetSessionFloat(s Store, key string, v float64) error {
	return s.SetSession(key, strconv.FormatFloat(v, 'g', -1, 64))
}
