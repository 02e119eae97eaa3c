package handlers

import (
	"errors"
	"io"
	"net/http"

	"fieldcollect-backend/internal/middleware"
	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/collection"
	"fieldcollect-backend/internal/services/location"
	"fieldcollect-backend/internal/services/session"
	"fieldcollect-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

type startSessionRequest struct {
	OperatorID string `json:"operator_id"`
	RouteID    string `json:"route_id"`
}

type scanRequest struct {
	BinID string `json:"bin_id"`
}

type manualEntryRequest struct {
	Weight    *float64 `json:"weight"`
	WasteType string   `json:"waste_type"`
}

type missedRequest struct {
	BinID  string              `json:"bin_id"`
	Reason models.MissedReason `json:"reason"`
}

type fcmTokenRequest struct {
	Token string `json:"token"`
}

// sessionHandler resolves {id} to a session before calling fn
func sessionHandler(m *session.Manager, fn func(w http.ResponseWriter, r *http.Request, s *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Get(chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		fn(w, r, s)
	}
}

// StartSession opens a collection session for an operator on a route
func StartSession(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.OperatorID == "" || req.RouteID == "" {
			utils.RespondError(w, http.StatusBadRequest, "operator_id and route_id are required")
			return
		}

		s, err := m.Start(req.OperatorID, req.RouteID)
		switch {
		case errors.Is(err, session.ErrUnknownRoute):
			utils.RespondError(w, http.StatusNotFound, "Route not found")
			return
		case errors.Is(err, session.ErrOperatorHasSession):
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			middleware.LoggerFrom(r.Context()).WithField("error", err.Error()).Error("❌ Failed to start session")
			utils.RespondError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}

		utils.RespondJSON(w, http.StatusCreated, s.Summary())
	}
}

// ListSessions returns all open sessions
func ListSessions(m *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, m.List())
	}
}

// GetSession returns one session's summary
func GetSession(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		utils.RespondJSON(w, http.StatusOK, s.Summary())
	})
}

// EndSession closes a session and releases its tracking
func EndSession(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		summary := s.Summary()
		if err := m.End(s.ID); err != nil {
			utils.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		summary.Tracking = false
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"session": summary,
		})
	})
}

// respondOutcome writes the result of an operator input
func respondOutcome(w http.ResponseWriter, r *http.Request, out collection.Outcome, err error) {
	var invalidBin *collection.InvalidBinError
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, out)
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	case errors.As(err, &invalidBin):
		utils.RespondErrorWith(w, http.StatusUnprocessableEntity, err.Error(), map[string]interface{}{"outcome": out})
	case errors.Is(err, collection.ErrInvalidTransition), errors.Is(err, collection.ErrDuplicateRecord):
		utils.RespondErrorWith(w, http.StatusConflict, err.Error(), map[string]interface{}{"outcome": out})
	case errors.Is(err, collection.ErrInvalidReason), errors.Is(err, collection.ErrInvalidWeight):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		middleware.LoggerFrom(r.Context()).WithField("error", err.Error()).Error("❌ Operator input failed")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process input")
	}
}

// Scan handles a scanned bin ID
func Scan(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req scanRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		out, err := s.Scan(r.Context(), req.BinID)
		respondOutcome(w, r, out, err)
	})
}

// Override re-collects the bin of a pending duplicate scan
func Override(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		out, err := s.Override(r.Context())
		respondOutcome(w, r, out, err)
	})
}

// Cancel abandons a pending duplicate scan or voluntary manual entry
func Cancel(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		out, err := s.Cancel()
		respondOutcome(w, r, out, err)
	})
}

// RequestManualEntry opens manual entry for a bin or for the failed sensor read
func RequestManualEntry(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		// Body is optional when resolving a failed sensor read
		var req scanRequest
		if err := utils.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		out, err := s.RequestManualEntry(req.BinID)
		respondOutcome(w, r, out, err)
	})
}

// SubmitManualEntry records an operator-entered weight
func SubmitManualEntry(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req manualEntryRequest
		if err := utils.DecodeJSON(r, &req); err != nil || req.Weight == nil {
			utils.RespondError(w, http.StatusBadRequest, "weight is required")
			return
		}
		out, err := s.SubmitManualEntry(*req.Weight, req.WasteType)
		respondOutcome(w, r, out, err)
	})
}

// MarkMissed records a bin that could not be collected
func MarkMissed(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req missedRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		out, err := s.MarkMissed(req.BinID, req.Reason)
		respondOutcome(w, r, out, err)
	})
}

// respondLocationError reports a recoverable location failure with a retry affordance
func respondLocationError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	var locErr *location.LocationError
	if errors.As(err, &locErr) {
		utils.RespondErrorWith(w, http.StatusServiceUnavailable, locErr.Message, map[string]interface{}{
			"code":      locErr.Code,
			"retryable": locErr.Retryable(),
		})
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}

// AcquireFix runs a high-accuracy fix acquisition
func AcquireFix(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		fix, err := s.AcquireFix(r.Context())
		if err != nil {
			respondLocationError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, fix)
	})
}

// StartTracking starts continuous tracking for the session
func StartTracking(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		if err := s.StartTracking(); err != nil {
			respondLocationError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"tracking": true})
	})
}

// StopTracking stops continuous tracking for the session
func StopTracking(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		s.StopTracking()
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"tracking": false})
	})
}

// RegisterFCMToken sets the device token for feedback pushes
func RegisterFCMToken(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		var req fcmTokenRequest
		if err := utils.DecodeJSON(r, &req); err != nil || req.Token == "" {
			utils.RespondError(w, http.StatusBadRequest, "token is required")
			return
		}
		s.SetFCMToken(req.Token)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})
}

// GetProgress returns distinct-bin progress
func GetProgress(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		utils.RespondJSON(w, http.StatusOK, s.Progress())
	})
}

// GetNextDestination returns the nearest bin without a record, or null
// when there is no fix yet or the route is done
func GetNextDestination(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		next, ok := s.NextDestination()
		if !ok {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"next_destination": nil})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"next_destination": next})
	})
}

// GetSegments returns the route segmentation
func GetSegments(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		utils.RespondJSON(w, http.StatusOK, s.Segments())
	})
}

// GetMapState returns the map renderer payload
func GetMapState(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		utils.RespondJSON(w, http.StatusOK, s.MapState())
	})
}

// GetRecords returns the session ledger
func GetRecords(m *session.Manager) http.HandlerFunc {
	return sessionHandler(m, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		records := s.Records()
		out := make([]models.RecordResponse, len(records))
		for i := range records {
			out[i] = records[i].ToRecordResponse()
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"records":      out,
			"total_weight": s.Workflow.TotalWeight(),
		})
	})
}
