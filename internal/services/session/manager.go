// Package session owns the per-operator collection sessions and connects
// each session's workflow, planner and tracker to the outbound hooks
// (websocket hub, record stream, push notifications).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldcollect-backend/internal/metrics"
	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/catalog"
	"fieldcollect-backend/internal/services/collection"
	"fieldcollect-backend/internal/services/location"
	"fieldcollect-backend/internal/services/navigation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownRoute       = errors.New("unknown route")
	ErrSessionNotFound    = errors.New("session not found")
	ErrOperatorHasSession = errors.New("operator already has an active session")
	ErrNoPushSource       = errors.New("session source does not accept pushed positions")
)

// Broadcaster delivers JSON messages to connected clients
type Broadcaster interface {
	BroadcastToUser(userID string, data interface{})
	BroadcastToRole(role string, data interface{})
}

// RecordExporter hands finalized records to external persistence
type RecordExporter interface {
	Publish(ctx context.Context, sessionID, operatorID string, rec models.CollectionRecord) (string, error)
}

// FeedbackNotifier pushes feedback to an operator device
type FeedbackNotifier interface {
	NotifyFeedback(ctx context.Context, token, sessionID string, fb models.FeedbackEvent) error
}

// SourceFactory creates the position source of a new session and a func
// that releases it
type SourceFactory func(operatorID string) (location.Source, func(), error)

// PushSourceFactory gives every session a device-fed push source
func PushSourceFactory(string) (location.Source, func(), error) {
	return location.NewPushSource(), func() {}, nil
}

// MQTTSourceFactory subscribes each session to its operator's GPS unit topic
func MQTTSourceFactory(broker, topicPrefix string) SourceFactory {
	return func(operatorID string) (location.Source, func(), error) {
		clientID := fmt.Sprintf("fieldcollect-%s-%s", operatorID, uuid.New().String()[:8])
		src, err := location.NewMQTTSource(broker, clientID, location.GPSTopic(topicPrefix, operatorID))
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
}

// Options configures a Manager. Nil hooks are disabled.
type Options struct {
	Location    location.Config
	NewSensor   func() collection.Sensor
	NewSource   SourceFactory
	Broadcaster Broadcaster
	Exporter    RecordExporter
	Notifier    FeedbackNotifier
}

// Manager owns all open sessions, at most one per operator
type Manager struct {
	catalog *catalog.Catalog
	opts    Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	sessions   map[string]*Session
	byOperator map[string]string
}

// NewManager creates a manager over a loaded catalog
func NewManager(cat *catalog.Catalog, opts Options) *Manager {
	if opts.NewSource == nil {
		opts.NewSource = PushSourceFactory
	}
	if opts.NewSensor == nil {
		opts.NewSensor = func() collection.Sensor {
			return collection.NewSimulatedSensor(nil, collection.DefaultFailureProbability)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		catalog:    cat,
		opts:       opts,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Session),
		byOperator: make(map[string]string),
	}
}

// Catalog returns the shared route catalog
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Start opens a session for operatorID on routeID
func (m *Manager) Start(operatorID, routeID string) (*Session, error) {
	if operatorID == "" {
		return nil, errors.New("operator id is required")
	}
	if !m.catalog.IsValidRoute(routeID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, routeID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.byOperator[operatorID]; busy {
		return nil, ErrOperatorHasSession
	}

	source, closeSource, err := m.opts.NewSource(operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to open position source: %w", err)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		ID:          uuid.New().String(),
		OperatorID:  operatorID,
		RouteID:     routeID,
		StartedAt:   m.now(),
		Workflow:    collection.NewWorkflow(m.catalog, m.opts.NewSensor()),
		Planner:     navigation.NewPlanner(m.catalog),
		Tracker:     location.NewTracker(source, m.opts.Location),
		closeSource: closeSource,
		broadcaster: m.opts.Broadcaster,
		exporter:    m.opts.Exporter,
		notifier:    m.opts.Notifier,
		ctx:         ctx,
		cancel:      cancel,
	}
	if p, ok := source.(pusher); ok {
		s.push = p
	}
	s.logger = logrus.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"operator_id": operatorID,
		"route_id":    routeID,
	})
	s.wire()

	m.sessions[s.ID] = s
	m.byOperator[operatorID] = s.ID
	metrics.ActiveSessions.Inc()

	s.logger.Info("✅ Collection session started")
	return s, nil
}

// Get returns a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ForOperator returns the open session of an operator
func (m *Manager) ForOperator(operatorID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byOperator[operatorID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.sessions[id], nil
}

// List returns summaries of all open sessions
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	return out
}

// End closes a session, releasing its tracking watch and source
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.byOperator, s.OperatorID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.close()
	metrics.ActiveSessions.Dec()
	s.logger.WithFields(logrus.Fields{
		"records":      s.Workflow.RecordCount(),
		"total_weight": s.Workflow.TotalWeight(),
	}).Info("🔴 Collection session ended")
	return nil
}

// Shutdown ends every session
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.End(id)
	}
	m.cancel()
}

// PushPosition feeds a device-reported position into the operator's session
func (m *Manager) PushPosition(operatorID string, pos location.Position) error {
	s, err := m.ForOperator(operatorID)
	if err != nil {
		return err
	}
	if s.push == nil {
		return ErrNoPushSource
	}
	s.push.Push(pos)
	return nil
}

// FailPosition reports a device-side positioning error into the operator's session
func (m *Manager) FailPosition(operatorID string, cause error) error {
	s, err := m.ForOperator(operatorID)
	if err != nil {
		return err
	}
	if s.push == nil {
		return ErrNoPushSource
	}
	s.push.Fail(cause)
	return nil
}
