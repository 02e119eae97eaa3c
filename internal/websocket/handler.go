package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client roles
const (
	RoleOperator   = "operator"
	RoleSupervisor = "supervisor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades HTTP connection to WebSocket. Clients identify
// with the operator_id and optional role query parameters.
func HandleWebSocket(hub *Hub, sink PositionSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID := r.URL.Query().Get("operator_id")
		if operatorID == "" {
			http.Error(w, "operator_id is required", http.StatusBadRequest)
			return
		}

		role := r.URL.Query().Get("role")
		switch role {
		case "":
			role = RoleOperator
		case RoleOperator, RoleSupervisor:
		default:
			http.Error(w, "unknown role", http.StatusBadRequest)
			return
		}

		// Upgrade HTTP connection to WebSocket
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithField("error", err.Error()).Error("❌ WebSocket upgrade failed")
			return
		}

		client := NewClient(operatorID, role, conn, hub, sink)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		// Start pumps in separate goroutines
		go client.WritePump()
		go client.ReadPump()

		logrus.WithFields(logrus.Fields{
			"operator_id": operatorID,
			"role":        role,
		}).Info("✅ WebSocket connection established")
	}
}
