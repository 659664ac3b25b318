package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/example/mechanic-dispatch/internal/models"
)

// SSEStream writes events to an HTTP response as text/event-stream.
type SSEStream struct {
	w      http.ResponseWriter
	f      http.Flusher
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSSEStream prepares w for streaming. It fails if the writer cannot flush.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSEStream{w: w, f: f, done: make(chan struct{})}, nil
}

func (s *SSEStream) Send(ev models.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: booking\ndata: %s\n\n", b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *SSEStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Serve blocks until the client disconnects or the stream is closed, writing a comment
// line every heartbeat so idle proxies keep the connection open.
func (s *SSEStream) Serve(ctx context.Context, heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			var err error
			if !s.closed {
				_, err = fmt.Fprint(s.w, ": ping\n\n")
				if err == nil {
					s.f.Flush()
				}
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
