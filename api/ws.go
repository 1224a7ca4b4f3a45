package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/emochain/emochain/core"
)

// Message is a WebSocket request from a connected client.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// handleWebSocket streams chain events to the client and accepts biometric
// snapshot updates over the same connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade to WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	id, events := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	// The connection supports a single concurrent writer, so bus events
	// and request responses are funneled through one goroutine. It drains
	// until Unsubscribe closes the event channel or the peer goes away.
	responses := make(chan any, 8)
	go func() {
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case msg := <-responses:
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()
	reply := func(v any) {
		select {
		case responses <- v:
		default:
		}
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "snapshot":
			var data struct {
				ValidatorID string                 `json:"validatorId"`
				Snapshot    core.BiometricSnapshot `json:"snapshot"`
			}
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				reply(map[string]string{"status": "error", "message": "invalid data"})
				continue
			}
			if !s.biometrics.Allow() {
				reply(map[string]string{"status": "error", "message": "rate limited"})
				continue
			}
			v, err := s.registry.Update(data.ValidatorID, data.Snapshot)
			if err != nil {
				reply(map[string]string{"status": "error", "message": err.Error()})
				continue
			}
			reply(map[string]any{"status": "success", "score": v.Score})

		case "height":
			reply(map[string]uint64{"height": s.chain.Height()})

		default:
			reply(map[string]string{"status": "error", "message": "unknown type"})
		}
	}
}
