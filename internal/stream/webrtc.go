package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/satindergrewal/overdub/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// WebRTCHandler serves WebRTC SDP negotiation for a low-latency Opus monitor of the mix.
type WebRTCHandler struct {
	mix     *Broadcaster[[]int16]
	bitrate int
	logger  zerolog.Logger

	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC monitor handler fed by mix.
func NewWebRTCHandler(mix *Broadcaster[[]int16], bitrate int, logger zerolog.Logger) *WebRTCHandler {
	if bitrate <= 0 {
		bitrate = 128000
	}
	return &WebRTCHandler{
		mix:     mix,
		bitrate: bitrate,
		logger:  logger.With().Str("component", "monitor-webrtc").Logger(),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := answerOffer(offer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("negotiation failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	h.logger.Info().Int("peers", h.PeerCount()).Msg("peer connected")

	stop := make(chan struct{})
	var once sync.Once
	go h.streamToPeer(track, stop)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			once.Do(func() {
				close(stop)
				h.removePeer(pc)
				pc.Close()
				h.logger.Info().Int("peers", h.PeerCount()).Msg("peer disconnected")
			})
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(pc.LocalDescription()); err != nil {
		h.logger.Warn().Err(err).Msg("write answer")
	}
}

// answerOffer builds a send-only peer with one Opus track and completes ICE
// gathering, so the local description carries every candidate.
func answerOffer(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}
	fail := func(step string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("%s: %w", step, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "overdub-mix")
	if err != nil {
		return fail("opus track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail("add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail("remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail("create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail("local description", err)
	}
	<-gathered
	return pc, track, nil
}

func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	listener := h.mix.Subscribe()
	defer h.mix.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.logger.Error().Err(err).Msg("opus encoder")
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		h.logger.Warn().Err(err).Int("bitrate", h.bitrate).Msg("opus bitrate")
	}

	opusBuf := make([]byte, 4000)
	for {
		select {
		case <-stop:
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.logger.Warn().Err(err).Msg("opus encode")
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return
		}
	}
}
