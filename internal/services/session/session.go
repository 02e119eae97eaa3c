package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/collection"
	"fieldcollect-backend/internal/services/location"
	"fieldcollect-backend/internal/services/navigation"

	"github.com/sirupsen/logrus"
)

// exportTimeout bounds a single record export or push notification
const exportTimeout = 10 * time.Second

// SupervisorRole receives every operator's live position
const SupervisorRole = "supervisor"

// pusher is implemented by sources that accept device-pushed positions
type pusher interface {
	Push(location.Position)
	Fail(error)
}

// Session is one operator working one route. It owns its workflow, planner
// and tracker; nothing in it is shared with other sessions.
type Session struct {
	ID         string
	OperatorID string
	RouteID    string
	StartedAt  time.Time

	Workflow *collection.Workflow
	Planner  *navigation.Planner
	Tracker  *location.Tracker

	push        pusher
	closeSource func()

	broadcaster Broadcaster
	exporter    RecordExporter
	notifier    FeedbackNotifier
	logger      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsubs []func()

	// inputMu is held shared by operator inputs and exclusively by close,
	// so no record is committed once close has started
	inputMu sync.RWMutex

	mu       sync.Mutex
	handle   *location.TrackingHandle
	fcmToken string
	closed   bool
}

// Summary is the externally visible state of a session
type Summary struct {
	ID          string               `json:"session_id"`
	OperatorID  string               `json:"operator_id"`
	RouteID     string               `json:"route_id"`
	StartedAt   time.Time            `json:"started_at"`
	State       collection.State     `json:"state"`
	Tracking    bool                 `json:"tracking"`
	Progress    models.RouteProgress `json:"progress"`
	TotalWeight float64              `json:"total_weight"`
	RecordCount int                  `json:"record_count"`
}

// wire connects workflow and tracker events to the outbound hooks
func (s *Session) wire() {
	s.unsubs = append(s.unsubs,
		s.Workflow.SubscribeRecords(s.onRecord),
		s.Workflow.SubscribeFeedback(s.onFeedback),
	)
}

func (s *Session) onRecord(rec models.CollectionRecord) {
	s.send("record", rec.ToRecordResponse())
	s.PublishMapState()

	if s.exporter == nil {
		return
	}
	s.goAsync(func(ctx context.Context) {
		if _, err := s.exporter.Publish(ctx, s.ID, s.OperatorID, rec); err != nil {
			s.logger.WithFields(logrus.Fields{
				"record_id": rec.ID,
				"error":     err.Error(),
			}).Error("❌ Record export failed")
		}
	})
}

func (s *Session) onFeedback(fb models.FeedbackEvent) {
	s.send("feedback", fb)

	s.mu.Lock()
	token := s.fcmToken
	s.mu.Unlock()

	if s.notifier == nil || token == "" {
		return
	}
	s.goAsync(func(ctx context.Context) {
		if err := s.notifier.NotifyFeedback(ctx, token, s.ID, fb); err != nil {
			s.logger.WithField("error", err.Error()).Warn("⚠️  Feedback push failed")
		}
	})
}

func (s *Session) onFix(fix models.LocationFix) {
	s.Planner.OnFix(fix)
	s.send("location", fix)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRole(SupervisorRole, map[string]interface{}{
			"type": "operator_location",
			"data": map[string]interface{}{
				"operator_id": s.OperatorID,
				"session_id":  s.ID,
				"route_id":    s.RouteID,
				"fix":         fix,
			},
		})
	}
}

func (s *Session) onLocationError(err *location.LocationError) {
	s.Workflow.Publish(feedbackCategory(err), err.Message)
}

// feedbackCategory maps a location error onto the feedback enumeration:
// transient failures are Offline, the rest are Error
func feedbackCategory(err *location.LocationError) models.FeedbackCategory {
	if err.Retryable() {
		return models.FeedbackOffline
	}
	return models.FeedbackError
}

// goAsync runs fn bounded by exportTimeout; close waits for it. Work
// arriving after close is dropped.
func (s *Session) goAsync(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), exportTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) send(msgType string, data interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToUser(s.OperatorID, map[string]interface{}{
		"type":       msgType,
		"session_id": s.ID,
		"data":       data,
	})
}

// input runs one operator input against the workflow unless the session
// has been closed
func (s *Session) input(fn func() (collection.Outcome, error)) (collection.Outcome, error) {
	s.inputMu.RLock()
	defer s.inputMu.RUnlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return collection.Outcome{}, ErrSessionNotFound
	}
	return fn()
}

// Scan submits a scanned bin identifier
func (s *Session) Scan(ctx context.Context, binID string) (collection.Outcome, error) {
	return s.input(func() (collection.Outcome, error) { return s.Workflow.Scan(ctx, binID) })
}

// Override records the current bin despite a pickup mismatch
func (s *Session) Override(ctx context.Context) (collection.Outcome, error) {
	return s.input(func() (collection.Outcome, error) { return s.Workflow.Override(ctx) })
}

// Cancel abandons the current bin
func (s *Session) Cancel() (collection.Outcome, error) {
	return s.input(s.Workflow.Cancel)
}

func (s *Session) RequestManualEntry(binID string) (collection.Outcome, error) {
	return s.input(func() (collection.Outcome, error) { return s.Workflow.RequestManualEntry(binID) })
}

func (s *Session) SubmitManualEntry(weight float64, wasteType string) (collection.Outcome, error) {
	return s.input(func() (collection.Outcome, error) { return s.Workflow.SubmitManualEntry(weight, wasteType) })
}

// MarkMissed records a bin that could not be collected
func (s *Session) MarkMissed(binID string, reason models.MissedReason) (collection.Outcome, error) {
	return s.input(func() (collection.Outcome, error) { return s.Workflow.MarkMissed(binID, reason) })
}

// StartTracking starts continuous tracking. It is a no-op when already tracking.
func (s *Session) StartTracking() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.handle != nil && s.Tracker.IsTracking() {
		s.mu.Unlock()
		return nil
	}

	handle, err := s.Tracker.StartTracking(s.ctx, s.onFix, s.onLocationError)
	if err != nil {
		s.mu.Unlock()
		var locErr *location.LocationError
		if errors.As(err, &locErr) {
			s.onLocationError(locErr)
		}
		return err
	}
	s.handle = handle
	s.mu.Unlock()

	s.Planner.SetTracking(true)
	s.logger.Info("📍 Tracking started")
	s.PublishMapState()
	return nil
}

// StopTracking releases the tracking watch; safe to call when not tracking
func (s *Session) StopTracking() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return
	}
	handle.Stop()
	s.Planner.SetTracking(false)
	s.logger.Info("🔴 Tracking stopped")
	s.PublishMapState()
}

// IsTracking reports whether this session's tracking watch is running
func (s *Session) IsTracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.Tracker.IsTracking()
}

// AcquireFix runs a high-accuracy acquisition and feeds the result to the planner
func (s *Session) AcquireFix(ctx context.Context) (models.LocationFix, error) {
	fix, err := s.Tracker.GetHighAccuracyFix(ctx)
	if err != nil {
		var locErr *location.LocationError
		if errors.As(err, &locErr) {
			s.onLocationError(locErr)
		}
		return models.LocationFix{}, err
	}

	s.Planner.OnFix(fix)
	s.send("location", fix)
	return fix, nil
}

// SetFCMToken sets the device token feedback pushes go to
func (s *Session) SetFCMToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fcmToken = token
}

// Progress returns distinct-bin progress over the route
func (s *Session) Progress() models.RouteProgress {
	return s.Planner.Progress(s.RouteID, s.Workflow.Records())
}

// NextDestination returns the nearest bin without a record
func (s *Session) NextDestination() (models.NextDestination, bool) {
	return s.Planner.NextDestination(s.RouteID, s.Workflow.Records())
}

// Segments returns the cached route segmentation
func (s *Session) Segments() *models.RouteSegments {
	return s.Planner.SegmentRoute(s.RouteID, s.Workflow.Records())
}

// MapState returns the map renderer payload, colored by this session's advisory statuses
func (s *Session) MapState() models.MapState {
	return s.Planner.MapState(s.RouteID, s.Workflow.Records(), s.Workflow.StatusOf)
}

// PublishMapState sends the current map state to the operator
func (s *Session) PublishMapState() {
	s.send("map_state", s.MapState())
}

// Records returns the session ledger
func (s *Session) Records() []models.CollectionRecord {
	return s.Workflow.Records()
}

// Summary returns the session overview
func (s *Session) Summary() Summary {
	return Summary{
		ID:          s.ID,
		OperatorID:  s.OperatorID,
		RouteID:     s.RouteID,
		StartedAt:   s.StartedAt,
		State:       s.Workflow.State(),
		Tracking:    s.IsTracking(),
		Progress:    s.Progress(),
		TotalWeight: s.Workflow.TotalWeight(),
		RecordCount: s.Workflow.RecordCount(),
	}
}

// close releases tracking, hooks and the source. It runs once.
func (s *Session) close() {
	s.inputMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.inputMu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.inputMu.Unlock()

	s.StopTracking()
	s.cancel()
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.wg.Wait()

	if s.closeSource != nil {
		s.closeSource()
	}
}
