// Package audit emits human-readable activity events to an external trail
// service. Emission is fire-and-forget: events are queued onto a buffered
// channel and shipped by a background worker, and no failure here ever
// blocks or fails the operation being audited.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event is one audit line.
type Event struct {
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder accepts activity events.
type Recorder interface {
	// Record queues an event. It never blocks and never returns an error.
	Record(ctx context.Context, actorID, message string)
	// Close stops accepting events and drains the queue.
	Close() error
}

// Nop discards all events. Used when activity tracking is disabled.
type Nop struct{}

func (Nop) Record(context.Context, string, string) {}
func (Nop) Close() error                           { return nil }

// HTTPSink posts events to a trail endpoint from a single background worker.
type HTTPSink struct {
	url    string
	source string
	client *http.Client
	logger *slog.Logger

	ch        chan Event
	closeOnce sync.Once
	done      chan struct{}
}

const sinkBuffer = 256

// NewHTTPSink starts a sink shipping to url, tagging every event with the
// given source (the lowercase application name).
func NewHTTPSink(url, source string, logger *slog.Logger) *HTTPSink {
	s := &HTTPSink{
		url:    url,
		source: source,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
		ch:     make(chan Event, sinkBuffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues the event, dropping it when the buffer is full.
func (s *HTTPSink) Record(_ context.Context, actorID, message string) {
	ev := Event{
		UserID:     actorID,
		Message:    message,
		Source:     s.source,
		RecordedAt: time.Now().UTC(),
	}
	select {
	case s.ch <- ev:
	default:
		s.logger.Warn("audit buffer full, dropping event", "message", message)
	}
}

// Close drains pending events and stops the worker.
func (s *HTTPSink) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	<-s.done
	return nil
}

func (s *HTTPSink) run() {
	defer close(s.done)
	for ev := range s.ch {
		s.ship(ev)
	}
}

func (s *HTTPSink) ship(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("audit event marshal failed", "error", err)
		return
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("audit event delivery failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("audit event rejected", "status", resp.StatusCode)
	}
}
