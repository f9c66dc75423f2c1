package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/propdeck/backend/internal/interactions"
	"go.uber.org/zap"
)

const (
	socketEventGetProperties   = "getProperties"
	socketEventUpdateProperty  = "updateProperty"
	socketEventPropertyCreated = "propertyCreated"
	socketEventPropertyUpdated = "propertyUpdated"
	socketEventAck             = "ack"
)

var socketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// socketFrame is the JSON wire format on the socket. Requests carry an id the
// matching ack echoes back; server-initiated frames carry no id.
type socketFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// socketSession serializes writes to one connection. The read loop and the
// hub forwarder both write frames.
type socketSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socketSession) writeFrame(event, id string, data interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(socketFrame{Event: event, ID: id, Data: encoded})
}

func (s *socketSession) ack(id string, response apiResponse) error {
	return s.writeFrame(socketEventAck, id, response)
}

// handleSocket authenticates the handshake, upgrades the connection, joins
// the user's room, and serves events until the peer disconnects. The event
// handlers call the same engine methods as the REST routes.
func (h *httpHandler) handleSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication error: No token provided", nil))
		return
	}

	account, err := h.resolveIdentity(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("socket handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication error: Invalid token", nil))
		return
	}

	conn, err := socketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("socket upgrade failed", zap.Error(err))
		return
	}
	session := &socketSession{conn: conn}
	defer conn.Close()

	stream, leaveRoom := h.hub.Subscribe(c.Request.Context(), account.ID)
	defer leaveRoom()
	go func() {
		for message := range stream {
			if err := session.writeFrame(message.Event, "", message.Data); err != nil {
				return
			}
		}
	}()

	h.logger.Info("socket connected",
		zap.String("user_id", account.ID),
		zap.String("room", RoomName(account.ID)))

	for {
		var frame socketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		h.dispatchSocketEvent(c, session, account.ID, frame)
	}

	h.logger.Info("socket disconnected", zap.String("user_id", account.ID))
}

func (h *httpHandler) dispatchSocketEvent(c *gin.Context, session *socketSession, userID string, frame socketFrame) {
	switch frame.Event {
	case socketEventGetProperties:
		h.socketGetProperties(c, session, userID, frame)
	case socketEventUpdateProperty:
		h.socketUpdateProperty(c, session, userID, frame)
	default:
		_ = session.ack(frame.ID, errorResponse("Unknown event: "+frame.Event, nil))
	}
}

func (h *httpHandler) socketGetProperties(c *gin.Context, session *socketSession, userID string, frame socketFrame) {
	states, err := h.listProperties(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("socket list failed", zap.Error(err), zap.String("user_id", userID))
		_ = session.ack(frame.ID, errorResponse("Error fetching properties", err))
		return
	}
	_ = session.ack(frame.ID, okResponse("Properties fetched successfully", states))
}

func (h *httpHandler) socketUpdateProperty(c *gin.Context, session *socketSession, userID string, frame socketFrame) {
	var payload propertyUpsertPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		_ = session.ack(frame.ID, errorResponse("Error updating property", err))
		return
	}

	outcome, err := h.upsertProperty(c.Request.Context(), userID, payload)
	if err != nil {
		if interactions.IsValidationError(err) {
			_ = session.ack(frame.ID, errorResponse("Error updating property", err))
			return
		}
		h.logger.Error("socket upsert failed", zap.Error(err),
			zap.String("user_id", userID), zap.String("property_id", payload.PropertyID))
		_ = session.ack(frame.ID, errorResponse("Error updating property", err))
		return
	}

	state := interactions.ResolveCurrentState(outcome.Record)
	switch outcome.Action {
	case interactions.ActionCreated:
		_ = session.writeFrame(socketEventPropertyCreated, "", okResponse("Property created successfully", state))
		_ = session.ack(frame.ID, okResponse("Property created successfully", state))
	case interactions.ActionAppended:
		_ = session.writeFrame(socketEventPropertyUpdated, "", okResponse("Property updated successfully", state))
		_ = session.ack(frame.ID, okResponse("Property updated successfully", state))
	default:
		_ = session.ack(frame.ID, okResponse("Property state unchanged, no update needed", state))
	}
}
