package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubPublishes(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	l := hub.Subscribe()
	defer hub.Unsubscribe(l)

	hub.DurationChanged(4.5)
	hub.ProgressUpdated(1.25)
	hub.PlaybackFinished()
	hub.ConversionFinished(2, 7, errors.New("boom"))

	assert.Equal(t, Event{Type: EventDurationChanged, TotalDuration: 4.5}, <-l.C)
	assert.Equal(t, Event{Type: EventProgress, CurrentTime: 1.25}, <-l.C)
	assert.Equal(t, Event{Type: EventPlaybackFinished}, <-l.C)
	assert.Equal(t, Event{Type: EventConversionFinished, TrackID: 2, ModelID: 7, Error: "boom"}, <-l.C)
}

func TestEventHubNeverBlocks(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	l := hub.Subscribe()
	defer hub.Unsubscribe(l)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.ProgressUpdated(float64(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier blocked on a slow subscriber")
	}
}

func TestEventsHandlerStreamsSSE(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	srv := httptest.NewServer(NewEventsHandler(hub))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.ProgressUpdated(2.5)

	sc := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	assert.Equal(t, "progress", eventLine)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &ev))
	assert.Equal(t, EventProgress, ev.Type)
	assert.InDelta(t, 2.5, ev.CurrentTime, 1e-9)

	cancel()
	assert.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}
