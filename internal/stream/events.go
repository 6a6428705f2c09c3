package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// EventType names an engine notification.
type EventType string

const (
	EventProgress           EventType = "progress"
	EventPlaybackFinished   EventType = "playbackFinished"
	EventDurationChanged    EventType = "durationChanged"
	EventConversionFinished EventType = "conversionFinished"
)

// Event is one notification published to UI subscribers.
type Event struct {
	Type          EventType `json:"type"`
	CurrentTime   float64   `json:"current_time"`
	TotalDuration float64   `json:"total_duration"`
	TrackID       int       `json:"track_id,omitempty"`
	ModelID       int       `json:"model_id,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// EventHub turns orchestrator notifications into events for subscribers.
// Its methods never block the caller.
type EventHub struct {
	b      *Broadcaster[Event]
	logger zerolog.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(logger zerolog.Logger) *EventHub {
	return &EventHub{
		b:      NewBroadcaster[Event](64),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (h *EventHub) ProgressUpdated(currentTime float64) {
	h.b.Publish(Event{Type: EventProgress, CurrentTime: currentTime})
}

func (h *EventHub) PlaybackFinished() {
	h.b.Publish(Event{Type: EventPlaybackFinished})
}

func (h *EventHub) DurationChanged(totalDuration float64) {
	h.b.Publish(Event{Type: EventDurationChanged, TotalDuration: totalDuration})
}

// ConversionFinished reports the outcome of a background conversion.
func (h *EventHub) ConversionFinished(trackID, modelID int, err error) {
	ev := Event{Type: EventConversionFinished, TrackID: trackID, ModelID: modelID}
	if err != nil {
		ev.Error = err.Error()
	}
	h.b.Publish(ev)
}

// Subscribe returns a listener for hub events.
func (h *EventHub) Subscribe() *Listener[Event] { return h.b.Subscribe() }

// Unsubscribe detaches l.
func (h *EventHub) Unsubscribe(l *Listener[Event]) { h.b.Unsubscribe(l) }

// SubscriberCount returns the number of attached listeners.
func (h *EventHub) SubscriberCount() int { return h.b.ListenerCount() }

// EventsHandler serves hub events as Server-Sent Events.
type EventsHandler struct {
	hub       *EventHub
	keepAlive time.Duration
}

// NewEventsHandler creates an SSE handler for hub.
func NewEventsHandler(hub *EventHub) *EventsHandler {
	return &EventsHandler{hub: hub, keepAlive: 15 * time.Second}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	l := h.hub.Subscribe()
	defer h.hub.Unsubscribe(l)

	h.hub.logger.Debug().Int("subscribers", h.hub.SubscriberCount()).Msg("event subscriber connected")
	defer h.hub.logger.Debug().Msg("event subscriber disconnected")

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-l.Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-l.C:
			data, err := json.Marshal(ev)
			if err != nil {
				h.hub.logger.Warn().Err(err).Msg("encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
