package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/events"
)

// streamBuffer bounds how far a slow client may lag before events are
// dropped for it. Bus observers must never block.
const streamBuffer = 128

// keepAlive is how often an idle stream sends a comment line.
var keepAlive = 15 * time.Second

type streamEvent struct {
	Topic    string                 `json:"topic"`
	Text     string                 `json:"text,omitempty"`
	Progress *backend.ProgressEvent `json:"progress,omitempty"`
}

var streamTopics = []events.Topic{
	events.TopicTranscript,
	events.TopicProgress,
	events.TopicAnalyzeProgress,
	events.TopicStateChanged,
}

// handleEvents serves a Server-Sent Events stream of transcript lines,
// agentic progress, analysis progress and state changes. Each SSE event is
// named after its topic and carries a JSON payload.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	ch := make(chan events.Event, streamBuffer)
	obs := events.ObserverFunc(func(e events.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	bus := s.deps.Store.Bus()
	for _, topic := range streamTopics {
		unsubscribe := bus.Subscribe(topic, obs)
		defer unsubscribe()
	}

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	tick := time.NewTicker(keepAlive)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			fmt.Fprintf(w, ": ping\n\n")
		case e := <-ch:
			writeEvent(w, e)
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) {
	payload := streamEvent{Topic: e.Topic.String(), Text: e.Text}
	if e.Topic == events.TopicProgress {
		p := e.Progress
		payload.Progress = &p
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", payload.Topic, data)
}
