package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"riskform/internal/features"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 << 10
)

// wsReply answers one RawInput sent over the socket: the normalized row, or
// the per-field errors the form shows inline.
type wsReply struct {
	Row    *features.FeatureRow `json:"row,omitempty"`
	Values features.RawInput    `json:"values,omitempty"`
	Fields map[string]string    `json:"fields,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// handleWebSocket normalizes the form on every widget change without calling
// the model.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()
	s.metrics.WSConnectionsInc()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		s.metrics.WSConnectionsDec()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket client disconnected")
			}
			return
		}

		var reply wsReply
		var raw features.RawInput
		if err := json.Unmarshal(data, &raw); err != nil {
			reply.Error = "invalid JSON: " + err.Error()
		} else if row, errs := s.normalize(raw, nil); len(errs) > 0 {
			reply.Fields = fieldMessages(errs)
		} else {
			reply.Row = &row
			reply.Values = features.Describe(s.builder.Codebook(), row)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Error().Err(err).Msg("Failed to send message to WebSocket client")
			return
		}
	}
}
