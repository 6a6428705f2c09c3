// Package storage maps projects and track slots to files on disk.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConvertedDirName holds every converted variant, flat, under the root.
const ConvertedDirName = "ConvertedWavs"

// Layout resolves asset paths below Root.
type Layout struct {
	Root string
}

// OriginalPath is where the recorded take of a slot lives.
func (l Layout) OriginalPath(projectID string, trackID int) string {
	return filepath.Join(l.Root, fmt.Sprintf("recording_%s_%d.wav", projectID, trackID))
}

// ConvertedDir returns the directory holding converted variants.
func (l Layout) ConvertedDir() string {
	return filepath.Join(l.Root, ConvertedDirName)
}

// ConvertedPath is the cache location of one converted variant. A zero
// pitch shift keeps the short name.
func (l Layout) ConvertedPath(projectID string, trackID, modelID, pitch int) string {
	name := fmt.Sprintf("converted_%s_%d_%d", projectID, trackID, modelID)
	if pitch != 0 {
		name += fmt.Sprintf("_p%d", pitch)
	}
	return filepath.Join(l.ConvertedDir(), name+".wav")
}

// ConvertedPaths lists every cached variant of a slot.
func (l Layout) ConvertedPaths(projectID string, trackID int) ([]string, error) {
	prefix := fmt.Sprintf("converted_%s_%d_", projectID, trackID)
	entries, err := os.ReadDir(l.ConvertedDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list converted variants: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		// project ids may contain underscores; the rest must be <model>[_p<pitch>]
		if !validVariantSuffix(strings.TrimSuffix(strings.TrimPrefix(e.Name(), prefix), ".wav")) {
			continue
		}
		paths = append(paths, filepath.Join(l.ConvertedDir(), e.Name()))
	}
	return paths, nil
}

func validVariantSuffix(s string) bool {
	model, pitch, hasPitch := strings.Cut(s, "_p")
	if !isInt(model) {
		return false
	}
	return !hasPitch || isInt(pitch)
}

func isInt(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Exists reports whether path is a regular file.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// RemoveTrackFiles deletes the original and every converted variant of a
// slot. Missing files are not an error.
func (l Layout) RemoveTrackFiles(projectID string, trackID int) error {
	paths, err := l.ConvertedPaths(projectID, trackID)
	if err != nil {
		return err
	}
	paths = append(paths, l.OriginalPath(projectID, trackID))

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
