package httpapi

import (
	"net/http"
	"time"

	"github.com/example/mechanic-dispatch/internal/apperr"
	"github.com/example/mechanic-dispatch/internal/notify"
)

// handleEventStream holds a text/event-stream response open for the caller. A newer stream
// for the same caller, or a failed write, ends this one.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	// the server's write timeout must not cut a long-lived stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	stream, err := notify.NewSSEStream(w)
	if err != nil {
		s.fail(w, r, apperr.Internal(err, "open event stream"))
		return
	}
	s.Notify.Subscribe(actor.ID, stream)
	s.logger.Info("notification stream opened", "subscriber", actor.ID, "transport", "sse")
	defer func() {
		s.Notify.Unsubscribe(actor.ID, stream)
		_ = stream.Close()
		s.logger.Info("notification stream closed", "subscriber", actor.ID, "transport", "sse")
	}()
	stream.Serve(r.Context(), s.StreamPing)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("websocket upgrade failed", "subscriber", actor.ID, "error", err)
		return
	}
	stream := notify.NewWSStream(conn)
	s.Notify.Subscribe(actor.ID, stream)
	s.logger.Info("notification stream opened", "subscriber", actor.ID, "transport", "websocket")
	defer func() {
		s.Notify.Unsubscribe(actor.ID, stream)
		_ = stream.Close()
		s.logger.Info("notification stream closed", "subscriber", actor.ID, "transport", "websocket")
	}()
	stream.Serve(r.Context())
}
