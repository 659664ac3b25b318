package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/mechanic-dispatch/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

var ErrStreamClosed = errors.New("notification stream closed")

// WSStream represents a subscriber connected over a websocket.
type WSStream struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewWSStream(conn *websocket.Conn) *WSStream {
	return &WSStream{conn: conn, done: make(chan struct{})}
}

func (s *WSStream) Send(ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(ev)
}

func (s *WSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// Serve keeps the connection alive with pings and blocks until the client goes away,
// the stream is closed, or ctx ends. Inbound messages are ignored.
func (s *WSStream) Serve(ctx context.Context) {
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		s.conn.SetReadLimit(512)
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-readErr:
			return
		case <-ticker.C:
			s.mu.Lock()
			var err error
			if !s.closed {
				err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
