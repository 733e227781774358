package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/server/middleware"
	"github.com/ladleworks/reelchef/pkg/broadcast"
	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// WebSocket close codes in the application range. Browsers cannot read
// HTTP error responses on a failed upgrade, so auth and lookup
// failures are reported after the upgrade instead.
const (
	CloseUnauthorized = 4401
	CloseJobNotFound  = 4404
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Events serves GET /v1/jobs/{id}/events: a WebSocket stream of job
// progress.
type Events struct {
	registry *broadcast.Registry
	verifier middleware.TokenVerifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEvents creates the event-stream handler.
func NewEvents(registry *broadcast.Registry, verifier middleware.TokenVerifier, logger *zap.Logger) *Events {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Events{
		registry: registry,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection, authenticates, attaches the
// subscriber and pumps events until the client goes away or the
// watched job's events stop mattering to it.
func (h *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	ownerID, err := h.verifier.Verify(middleware.BearerToken(r))
	if err != nil {
		h.close(conn, CloseUnauthorized, "invalid token")
		return
	}

	sub := newWSSubscriber(conn)
	if err := h.registry.Attach(r.Context(), jobID, ownerID, sub); err != nil {
		if pipeline.IsNotFound(err) || errors.Is(err, broadcast.ErrNotOwner) {
			h.close(conn, CloseJobNotFound, "job not found")
			return
		}
		h.logger.Error("Subscriber attach failed",
			zap.String("job_id", jobID), zap.Error(err))
		h.close(conn, websocket.CloseInternalServerErr, "attach failed")
		return
	}
	defer h.registry.Detach(jobID, sub)

	h.logger.Debug("Event stream opened",
		zap.String("job_id", jobID), zap.String("owner_id", ownerID))

	sub.run(conn)
}

func (h *Events) close(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = conn.Close()
}

// wsSubscriber adapts one WebSocket connection to the broadcast
// registry. All writes go through a mutex because Send and the ping
// loop run on different goroutines.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{conn: conn}
}

func (s *wsSubscriber) Send(ev broadcast.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(ev)
}

func (s *wsSubscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// run blocks until the connection dies. The read loop exists to
// surface close frames and pongs; clients send no data.
func (s *wsSubscriber) run(conn *websocket.Conn) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}
