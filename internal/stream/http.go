package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/satindergrewal/overdub/internal/audio"
)

// HTTPHandler serves the engine mix as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	mix    *Broadcaster[[]int16]
	logger zerolog.Logger
}

// NewHTTPHandler creates an HTTP monitor handler fed by mix.
func NewHTTPHandler(mix *Broadcaster[[]int16], logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{mix: mix, logger: logger.With().Str("component", "monitor-http").Logger()}
}

func ffmpegArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.logger.Error().Err(err).Msg("stdin pipe")
		http.Error(w, "monitor unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.logger.Error().Err(err).Msg("stdout pipe")
		http.Error(w, "monitor unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.logger.Error().Err(err).Msg("ffmpeg start")
		http.Error(w, "monitor unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	listener := h.mix.Subscribe()
	defer h.mix.Unsubscribe(listener)

	h.logger.Info().Int("listeners", h.mix.ListenerCount()).Msg("monitor listener connected")
	defer h.logger.Info().Msg("monitor listener disconnected")

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Warn().Err(err).Msg("ffmpeg read")
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
