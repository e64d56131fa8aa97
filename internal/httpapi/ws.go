package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"metricd/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 20,
}

// wsWriteTimeout bounds a single subscriber send so one stalled viewer
// cannot wedge fan-out indefinitely.
const wsWriteTimeout = 5 * time.Second

// wsSubscriber adapts a websocket connection to broker.Subscriber.
// Writes are serialized: rehydration and fan-out may race on connect.
type wsSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Send(payload types.LogRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(payload)
}

func (s *wsSubscriber) Close() error {
	return s.conn.Close()
}

// streamHandler upgrades the request, registers the connection for live
// fan-out (which replays cached history first), then blocks reading and
// discarding client messages (keep-alive pings) until disconnect.
func streamHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		experiment := chi.URLParam(r, "experiment")
		if experiment == "" {
			writeJSONError(w, http.StatusBadRequest, "experiment is required")
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if zlog != nil {
				zlog.Debug().Err(err).Msg("websocket upgrade failed")
			}
			return
		}
		sub := &wsSubscriber{conn: conn}
		if err := svc.Subscribe(experiment, sub); err != nil {
			if zlog != nil {
				zlog.Debug().Err(err).Str("experiment", experiment).Msg("rehydration failed")
			}
			_ = conn.Close()
			return
		}
		if zlog != nil {
			zlog.Info().Str("experiment", experiment).Msg("viewer connected")
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		svc.Unsubscribe(experiment, sub)
		_ = conn.Close()
		if zlog != nil {
			zlog.Info().Str("experiment", experiment).Msg("viewer disconnected")
		}
	}
}
