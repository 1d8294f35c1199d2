package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SiMista/Onskone-sub000/pkg/types"
)

// Dispatcher is what the read loop feeds: the session coordinator.
type Dispatcher interface {
	Dispatch(connID string, env types.Envelope)
	Disconnected(connID string)
}

const writeTimeout = 5 * time.Second

// Handler accepts a websocket, pumps outbound frames from the hub and feeds
// inbound envelopes to the dispatcher until the connection dies.
func Handler(h *Hub, d Dispatcher, originPatterns []string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := h.register(connID)
		defer func() {
			h.unregister(connID)
			d.Disconnected(connID)
		}()

		log.Debug("connection opened", zap.String("conn", connID))

		// Writer goroutine: drains the outbox until the hub closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for frame := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("connection read ended", zap.String("conn", connID), zap.Error(err))
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				h.Send(connID, types.EvtError, types.ErrorPayload{Message: "bad json"})
				continue
			}
			d.Dispatch(connID, env)
		}
	}
}
