package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/audio"
	"github.com/satindergrewal/overdub/internal/storage"
)

var (
	ErrInvalidModel = errors.New("invalid voice model")
	ErrNoRecording  = errors.New("track has no recording")
	ErrInProgress   = errors.New("conversion already in progress")
)

// ServiceConfig holds conversion parameters shared by every job.
type ServiceConfig struct {
	ProjectID          string
	ConversionStrength float64
	ModelVolumeMix     float64
	PollInterval       time.Duration
}

// Service converts track recordings and caches the results in the storage
// layout.
type Service struct {
	client *Client
	layout storage.Layout
	cfg    ServiceConfig
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

func NewService(client *Client, layout storage.Layout, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Service{
		client:   client,
		layout:   layout,
		cfg:      cfg,
		logger:   logger.With().Str("component", "conversion").Logger(),
		inflight: map[string]bool{},
	}
}

// ConvertAudio returns the local path of the (modelID, pitchShift) rendition
// of a track, converting it remotely unless it is already cached.
func (s *Service) ConvertAudio(ctx context.Context, trackID, modelID, pitchShift int) (string, error) {
	if modelID <= 0 {
		return "", fmt.Errorf("model %d: %w", modelID, ErrInvalidModel)
	}
	dest := s.layout.ConvertedPath(s.cfg.ProjectID, trackID, modelID, pitchShift)
	if storage.Exists(dest) {
		s.logger.Debug().Str("path", dest).Msg("conversion cache hit")
		return dest, nil
	}
	src := s.layout.OriginalPath(s.cfg.ProjectID, trackID)
	if info, err := audio.ReadInfo(src); err != nil || info.Frames == 0 {
		return "", fmt.Errorf("track %d: %w", trackID, ErrNoRecording)
	}

	s.mu.Lock()
	if s.inflight[dest] {
		s.mu.Unlock()
		return "", fmt.Errorf("track %d model %d: %w", trackID, modelID, ErrInProgress)
	}
	s.inflight[dest] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, dest)
		s.mu.Unlock()
	}()

	start := time.Now()
	jobID, err := s.client.StartConversion(ctx, src, Request{
		VoiceModelID:       modelID,
		ConversionStrength: s.cfg.ConversionStrength,
		ModelVolumeMix:     s.cfg.ModelVolumeMix,
		PitchShift:         pitchShift,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Int("track", trackID).
		Int("model", modelID).
		Str("name", ModelByID(modelID).Name).
		Int("job", jobID).
		Msg("conversion submitted")

	outURL, err := s.client.PollUntilDone(ctx, jobID, s.cfg.PollInterval)
	if err != nil {
		return "", err
	}
	if err := s.client.Download(ctx, outURL, dest); err != nil {
		return "", err
	}

	s.logger.Info().
		Int("track", trackID).
		Int("job", jobID).
		Dur("took", time.Since(start)).
		Msg("conversion downloaded")
	return dest, nil
}
