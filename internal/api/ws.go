package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// handleEvents streams the caller's learning events as JSON messages until
// the client goes away or the hub shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	learnerID := PrincipalFrom(r.Context()).ID

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("websocket accept failed", "learner_id", learnerID, "error", err)
		return
	}
	defer conn.CloseNow()

	ch, cancel := s.events.Subscribe(learnerID)
	defer cancel()

	// Client messages are ignored; CloseRead handles control frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				slog.Debug("websocket write failed", "learner_id", learnerID, "error", err)
				return
			}
		}
	}
}
