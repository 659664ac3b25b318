// Package notify pushes booking events to whichever customer or mechanic is listening.
//
// Delivery is best-effort: an event for a subscriber without an open stream is dropped,
// nothing is queued or retried, and a stream whose write fails is closed and forgotten.
package notify

import (
	"log/slog"
	"sync"

	"github.com/example/mechanic-dispatch/internal/models"
	"github.com/example/mechanic-dispatch/internal/observability"
)

// Stream is one open push channel to a subscriber. Send must be safe for concurrent use
// and must deliver events in call order.
type Stream interface {
	Send(ev models.Event) error
	Close() error
}

// Registry maps subscriber id to its single active stream.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]Stream
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{streams: make(map[string]Stream), logger: logger}
}

// Subscribe makes s the stream for id. A previous stream for id is closed.
func (r *Registry) Subscribe(id string, s Stream) {
	r.mu.Lock()
	prev, had := r.streams[id]
	r.streams[id] = s
	r.mu.Unlock()

	switch {
	case !had:
		observability.NotificationStreams.Inc()
	case prev != s:
		_ = prev.Close()
		r.logger.Debug("notification stream replaced", "subscriber", id)
	}
}

// Unsubscribe removes s if it is still the active stream for id. It reports whether it did.
func (r *Registry) Unsubscribe(id string, s Stream) bool {
	r.mu.Lock()
	cur, ok := r.streams[id]
	if ok && cur == s {
		delete(r.streams, id)
	}
	r.mu.Unlock()
	if ok && cur == s {
		observability.NotificationStreams.Dec()
		return true
	}
	return false
}

// Publish delivers ev to id's stream if one is open and reports whether it was written.
// Errors never reach the caller; a failing stream is dropped.
func (r *Registry) Publish(id string, ev models.Event) bool {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()
	if !ok {
		observability.NotificationsTotal.WithLabelValues("dropped").Inc()
		r.logger.Debug("no notification stream", "subscriber", id, "event", ev.Type, "booking_id", ev.BookingID)
		return false
	}
	if err := s.Send(ev); err != nil {
		observability.NotificationsTotal.WithLabelValues("failed").Inc()
		r.logger.Warn("notification delivery failed", "subscriber", id, "booking_id", ev.BookingID, "error", err)
		r.Unsubscribe(id, s)
		_ = s.Close()
		return false
	}
	observability.NotificationsTotal.WithLabelValues("delivered").Inc()
	return true
}

// Active reports the number of open streams.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// CloseAll closes every stream; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]Stream)
	r.mu.Unlock()
	for _, s := range streams {
		_ = s.Close()
		observability.NotificationStreams.Dec()
	}
}
