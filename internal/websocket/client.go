package websocket

import (
	"encoding/json"
	"time"

	"fieldcollect-backend/internal/services/location"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048
)

// PositionSink routes device-reported positions into the operator's session
type PositionSink interface {
	PushPosition(operatorID string, pos location.Position) error
	FailPosition(operatorID string, cause error) error
}

// Client represents a WebSocket client connection
type Client struct {
	UserID   string
	UserRole string // "operator" or "supervisor"
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
	sink     PositionSink
	now      func() time.Time

	// closed is set by the hub, under hub.mu, when send is closed
	closed bool
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// locationErrorData is the payload of a device-side location_error message
type locationErrorData struct {
	Code    location.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

// NewClient creates a new WebSocket client
func NewClient(userID, userRole string, conn *websocket.Conn, hub *Hub, sink PositionSink) *Client {
	return &Client{
		UserID:   userID,
		UserRole: userRole,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
		sink:     sink,
		now:      time.Now,
	}
}

// ReadPump pumps messages from the WebSocket connection to the session
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("error", err.Error()).Warn("WebSocket error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// handleMessage dispatches one inbound message by type
func (c *Client) handleMessage(raw []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithField("error", err.Error()).Debug("Invalid message format")
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(map[string]interface{}{
			"type":      "pong",
			"timestamp": c.now().Format(time.RFC3339),
		})

	case "location_update":
		c.handleLocationUpdate(msg.Data)

	case "location_error":
		c.handleLocationError(msg.Data)
	}
}

// handleLocationUpdate feeds a device position into the operator's tracker
func (c *Client) handleLocationUpdate(data json.RawMessage) {
	var payload location.PositionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"operator_id": c.UserID,
			"error":       err.Error(),
		}).Warn("❌ Invalid location_update payload")
		return
	}

	if err := c.sink.PushPosition(c.UserID, payload.ToPosition(c.now())); err != nil {
		c.replyError(err)
	}
}

// handleLocationError reports a device-side positioning failure
func (c *Client) handleLocationError(data json.RawMessage) {
	var payload locationErrorData
	if err := json.Unmarshal(data, &payload); err != nil || payload.Code == "" {
		return
	}

	locErr := location.NewLocationError(payload.Code, nil)
	if payload.Message != "" {
		locErr.Message = payload.Message
	}
	if err := c.sink.FailPosition(c.UserID, locErr); err != nil {
		c.replyError(err)
	}
}

func (c *Client) replyError(err error) {
	c.reply(map[string]interface{}{
		"type":  "error",
		"error": err.Error(),
	})
}

// reply queues a direct answer; it is dropped once the hub has closed send
// (the connection was replaced or disconnected)
func (c *Client) reply(data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
