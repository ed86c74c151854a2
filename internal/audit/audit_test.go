package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPSinkShipsEvents(t *testing.T) {
	var mu sync.Mutex
	var received []Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "apikeys-hub", discardLogger())
	sink.Record(context.Background(), "user-1", "has created new api key")
	sink.Record(context.Background(), "user-1", "has delete api key abc")

	// Close drains the queue before returning.
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d events, want 2", len(received))
	}
	if received[0].UserID != "user-1" || received[0].Message != "has created new api key" {
		t.Errorf("first event = %+v", received[0])
	}
	if received[0].Source != "apikeys-hub" {
		t.Errorf("source = %q, want apikeys-hub", received[0].Source)
	}
	if received[0].RecordedAt.IsZero() {
		t.Error("event has no timestamp")
	}
}

func TestHTTPSinkSurvivesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "apikeys-hub", discardLogger())
	// Delivery failures are logged and swallowed; Record and Close stay clean.
	sink.Record(context.Background(), "user-1", "has created new api key")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.Record(context.Background(), "user-1", "ignored")
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
