// Package api exposes the overdub session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/conversion"
	"github.com/satindergrewal/overdub/internal/engine"
	"github.com/satindergrewal/overdub/internal/orchestrator"
	"github.com/satindergrewal/overdub/internal/track"
)

// ConversionReporter is told how background conversions end.
type ConversionReporter interface {
	ConversionFinished(trackID, modelID int, err error)
}

// ModelLister pages through the voice models offered by the conversion
// service.
type ModelLister interface {
	ListVoiceModels(ctx context.Context, page int) ([]conversion.VoiceModel, error)
}

// Server routes control requests onto the controller.
type Server struct {
	ctrl     *orchestrator.Controller
	reporter ConversionReporter
	remote   ModelLister
	logger   zerolog.Logger

	ctx            context.Context
	convertTimeout time.Duration
}

// New creates the API. Background conversions are cancelled with ctx.
// reporter may be nil.
func New(ctx context.Context, ctrl *orchestrator.Controller, reporter ConversionReporter, logger zerolog.Logger) *Server {
	return &Server{
		ctrl:           ctrl,
		reporter:       reporter,
		logger:         logger.With().Str("component", "api").Logger(),
		ctx:            ctx,
		convertTimeout: 10 * time.Minute,
	}
}

// WithRemoteModels enables GET /api/models/remote.
func (s *Server) WithRemoteModels(l ModelLister) *Server {
	s.remote = l
	return s
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/models/remote", s.handleRemoteModels)

	mux.HandleFunc("POST /api/overdub", s.handleOverdub)
	mux.HandleFunc("POST /api/playback", s.session(func(o *orchestrator.Orchestrator) error { return o.TogglePlayback() }))
	mux.HandleFunc("POST /api/pause", s.session(func(o *orchestrator.Orchestrator) error {
		if o.IsPlaying() {
			o.PausePlaying()
		}
		return nil
	}))
	mux.HandleFunc("POST /api/stop", s.session(func(o *orchestrator.Orchestrator) error {
		o.StopPlaying()
		return nil
	}))
	mux.HandleFunc("POST /api/rewind", s.session(func(o *orchestrator.Orchestrator) error { return o.Rewind() }))
	mux.HandleFunc("POST /api/seek", s.handleSeek)
	mux.HandleFunc("POST /api/skip", s.handleSkip)
	mux.HandleFunc("POST /api/delta", s.handleDelta)
	mux.HandleFunc("DELETE /api/project", s.session(func(o *orchestrator.Orchestrator) error { return o.DeleteProject() }))

	mux.HandleFunc("POST /api/tracks/{id}/mute", s.handleMute)
	mux.HandleFunc("POST /api/tracks/{id}/volume", s.handleVolume)
	mux.HandleFunc("POST /api/tracks/{id}/reset", s.handleReset)
	mux.HandleFunc("POST /api/tracks/{id}/convert", s.handleConvert)
	mux.HandleFunc("POST /api/tracks/{id}/original", s.handleOriginal)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, conversion.ErrInvalidModel):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrUnknownTrack),
		errors.Is(err, track.ErrAssetMissing),
		errors.Is(err, conversion.ErrNoRecording):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrEngineBusy),
		errors.Is(err, orchestrator.ErrSlotIneligible),
		errors.Is(err, track.ErrAlreadyPlaying),
		errors.Is(err, track.ErrInvalidState),
		errors.Is(err, track.ErrMuted),
		errors.Is(err, engine.ErrEmptyTake),
		errors.Is(err, conversion.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrHardwareStart),
		errors.Is(err, orchestrator.ErrControllerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func trackID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, errors.Join(errBadRequest, err)
	}
	return id, nil
}

// reply answers with the session status after a successful command.
func (s *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.ctrl.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) session(fn func(*orchestrator.Orchestrator) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, s.ctrl.Do(fn))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.reply(w, nil)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := append([]conversion.Model{conversion.None}, conversion.Models...)
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleRemoteModels(w http.ResponseWriter, r *http.Request) {
	if s.remote == nil {
		http.Error(w, "conversion service not configured", http.StatusNotFound)
		return
	}
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, errBadRequest)
			return
		}
		page = n
	}
	models, err := s.remote.ListVoiceModels(r.Context(), page)
	if err != nil {
		s.logger.Warn().Err(err).Int("page", page).Msg("list voice models")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) handleOverdub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Track int `json:"track"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.ToggleOverdub(req.Track) }))
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time float64 `json:"time"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.Relocate(req.Time) }))
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.SkipBy(req.Seconds) }))
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.SetDelta(req.Delta) }))
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error {
		_, err := o.ToggleMute(id)
		return err
	}))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.SetVolume(id, req.Volume) }))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.ResetTrack(id) }))
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.UseOriginal(id) }))
}

// handleConvert starts a conversion in the background and answers 202.
// The outcome is delivered through the reporter.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, err := trackID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		ModelID    int `json:"model_id"`
		PitchShift int `json:"pitch_shift"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ModelID == conversion.None.ID {
		s.reply(w, s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.UseOriginal(id) }))
		return
	}
	if !conversion.IsSelectable(req.ModelID) {
		s.writeError(w, conversion.ErrInvalidModel)
		return
	}
	if err := s.ctrl.Do(func(o *orchestrator.Orchestrator) error { return o.CheckConvertible(id) }); err != nil {
		s.writeError(w, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.convertTimeout)
		defer cancel()
		err := s.ctrl.Convert(ctx, id, req.ModelID, req.PitchShift)
		if s.reporter != nil {
			s.reporter.ConversionFinished(id, req.ModelID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"track":       id,
		"model_id":    req.ModelID,
		"pitch_shift": req.PitchShift,
	})
}
