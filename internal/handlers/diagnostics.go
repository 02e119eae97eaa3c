package handlers

import (
	"net/http"

	"fieldcollect-backend/pkg/utils"

	"github.com/sirupsen/logrus"
)

// DiagnosticLog is a diagnostic entry sent by the operator app
type DiagnosticLog struct {
	Timestamp  string                 `json:"timestamp"`
	Context    string                 `json:"context"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data"`
	Platform   string                 `json:"platform"`
	OperatorID string                 `json:"operator_id"`
}

// ReceiveDiagnosticLog relays an app diagnostic into the server log
// POST /api/logs/diagnostic
func ReceiveDiagnosticLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry DiagnosticLog
		if err := utils.DecodeJSON(r, &entry); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		logger := logrus.WithFields(logrus.Fields{
			"platform":    entry.Platform,
			"context":     entry.Context,
			"operator_id": entry.OperatorID,
			"client_time": entry.Timestamp,
		})
		if len(entry.Data) > 0 {
			logger = logger.WithField("data", entry.Data)
		}

		switch entry.Level {
		case "ERROR":
			logger.Error("🔴 Mobile diagnostic: " + entry.Message)
		case "WARNING":
			logger.Warn("🟡 Mobile diagnostic: " + entry.Message)
		default:
			logger.Info("📱 Mobile diagnostic: " + entry.Message)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}
