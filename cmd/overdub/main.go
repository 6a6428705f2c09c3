package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/overdub/internal/api"
	"github.com/satindergrewal/overdub/internal/audio"
	"github.com/satindergrewal/overdub/internal/config"
	"github.com/satindergrewal/overdub/internal/conversion"
	"github.com/satindergrewal/overdub/internal/engine"
	"github.com/satindergrewal/overdub/internal/orchestrator"
	"github.com/satindergrewal/overdub/internal/settings"
	"github.com/satindergrewal/overdub/internal/storage"
	"github.com/satindergrewal/overdub/internal/stream"
	"github.com/satindergrewal/overdub/internal/track"
)

const trackCount = 3

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("overdub stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := settings.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	projectID, err := resolveProject(store, cfg.ProjectID)
	if err != nil {
		return err
	}
	layout := storage.Layout{Root: cfg.DataDir}
	logger = logger.With().Str("project", projectID).Logger()

	driver := openDriver(cfg.AudioBackend, logger)
	recorder := engine.NewCaptureRecorder(audio.SampleRate, audio.RecordChannels, logger)
	graph := engine.NewGraph(driver, recorder, logger)
	defer graph.Close()

	tracks := make([]*track.Track, 0, trackCount)
	for id := 1; id <= trackCount; id++ {
		tracks = append(tracks, track.New(id, projectID, layout, store, logger, track.WithGraph(graph)))
	}

	events := stream.NewEventHub(logger)

	var converter orchestrator.Converter
	var client *conversion.Client
	if cfg.ConversionAPIKey != "" {
		client = conversion.NewClient(cfg.ConversionAPIURL, cfg.ConversionAPIKey, logger)
		converter = conversion.NewService(client, layout, conversion.ServiceConfig{
			ProjectID:          projectID,
			ConversionStrength: cfg.ConversionStrength,
			ModelVolumeMix:     cfg.ModelVolumeMix,
			PollInterval:       cfg.ConversionPollInterval,
		}, logger)
	} else {
		logger.Info().Msg("voice conversion disabled (set OVERDUB_CONVERSION_API_KEY to enable)")
	}

	ctrl := orchestrator.NewController(orchestrator.Options{
		Tracks:       tracks,
		Graph:        graph,
		Recorder:     recorder,
		Notifier:     events,
		Store:        store,
		ProjectID:    projectID,
		BaseDelay:    cfg.BaseDelay,
		PollInterval: cfg.PollInterval,
		Delta:        cfg.SyncDelta,
		Logger:       logger,
	}, converter)

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctx) }()

	// Monitor: fan the rendered mix out to HTTP and WebRTC listeners
	mix := stream.NewBroadcaster[[]int16](150)
	go mix.Run(ctx, graph.Frames())

	mux := http.NewServeMux()
	server := api.New(ctx, ctrl, events, logger)
	if client != nil {
		server.WithRemoteModels(client)
	}
	server.Register(mux)
	mux.Handle("GET /api/events", stream.NewEventsHandler(events))
	mux.Handle("GET /stream", stream.NewHTTPHandler(mix, logger))
	mux.Handle("/offer", stream.NewWebRTCHandler(mix, cfg.MonitorBitrate, logger))

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
	}()

	logger.Info().Str("addr", addr).Str("backend", cfg.AudioBackend).Msg("overdub ready")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-ctrlDone
		return fmt.Errorf("http server: %w", err)
	}
	if err := <-ctrlDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openDriver picks the audio backend. A machine without a usable device
// falls back to the headless clock so the API stays available.
func openDriver(backend string, logger zerolog.Logger) engine.Driver {
	if backend == "headless" {
		return engine.NewHeadlessDriver(logger)
	}
	d, err := engine.NewMalgoDriver(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("audio device unavailable, using headless clock")
		return engine.NewHeadlessDriver(logger)
	}
	return d
}

// resolveProject returns the configured project, else the one remembered
// from the last run, else a new one.
func resolveProject(store settings.Store, configured string) (string, error) {
	if configured != "" {
		return configured, store.SetSession(settings.KeyProjectID, configured)
	}
	id, ok, err := store.GetSession(settings.KeyProjectID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	return id, store.SetSession(settings.KeyProjectID, id)
}
