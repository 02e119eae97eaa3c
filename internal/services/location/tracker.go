package location

import (
	"context"
	"math"
	"sync"
	"time"

	"fieldcollect-backend/internal/metrics"
	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/geo"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds the acquisition and filtering knobs of a Tracker
type Config struct {
	Timeout           time.Duration // Per single-fix request
	MaxAge            time.Duration // Cached position age accepted unless a fresh fix is forced
	MaxAttempts       int           // High-accuracy acquisition attempts
	RetryDelay        time.Duration // Pause between high-accuracy attempts
	AccuracyThreshold float64       // Meters; tracking fixes at or under this always propagate
	UpdateInterval    time.Duration // Tracking fixes propagate at least this often
}

// DefaultConfig returns the field defaults
func DefaultConfig() Config {
	return Config{
		Timeout:           15 * time.Second,
		MaxAge:            30 * time.Second,
		MaxAttempts:       3,
		RetryDelay:        2 * time.Second,
		AccuracyThreshold: 10,
		UpdateInterval:    5 * time.Second,
	}
}

// Tracker acquires single fixes and runs one continuous watch whose filtered
// fixes fan out to subscribers in registration order.
type Tracker struct {
	source Source
	config Config
	now    func() time.Time
	logger *logrus.Entry

	// watchMu serializes start/stop of the underlying watch
	watchMu sync.Mutex

	mu          sync.Mutex
	filter      *UpdateFilter
	subscribers []subscriber
	nextID      uint64
	watchCancel func()
	generation  uint64
	running     bool
}

type subscriber struct {
	id       uint64
	onUpdate func(models.LocationFix)
	onError  func(*LocationError)
}

// TrackingHandle is the scoped resource returned by StartTracking. Stopping
// it, or cancelling the context it was started with, releases the watch.
type TrackingHandle struct {
	ID         string
	tracker    *Tracker
	generation uint64

	mu      sync.Mutex
	release func() bool
}

// detach unregisters the context hook; safe to call more than once
func (h *TrackingHandle) detach() {
	h.mu.Lock()
	release := h.release
	h.release = nil
	h.mu.Unlock()

	if release != nil {
		release()
	}
}

// Stop is shorthand for tracker.StopTracking(h)
func (h *TrackingHandle) Stop() {
	if h == nil {
		return
	}
	h.tracker.StopTracking(h)
}

// NewTracker creates a tracker over source. A nil source yields Unsupported errors.
func NewTracker(source Source, config Config) *Tracker {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Tracker{
		source: source,
		config: config,
		now:    time.Now,
		filter: NewUpdateFilter(config.AccuracyThreshold, config.UpdateInterval),
		logger: logrus.WithField("component", "location_tracker"),
	}
}

// GetCurrentFix acquires a single fix bounded by the configured timeout
func (t *Tracker) GetCurrentFix(ctx context.Context, forceFresh bool) (models.LocationFix, error) {
	if t.source == nil {
		metrics.FixAttempts.WithLabelValues("unsupported").Inc()
		return models.LocationFix{}, NewLocationError(ErrUnsupported, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	opts := PositionOptions{
		HighAccuracy: true,
		Timeout:      t.config.Timeout,
		MaximumAge:   t.config.MaxAge,
	}
	if forceFresh {
		opts.MaximumAge = 0
	}

	pos, err := t.source.CurrentPosition(ctx, opts)
	if err != nil {
		locErr := toLocationError(err)
		metrics.FixAttempts.WithLabelValues(string(locErr.Code)).Inc()
		return models.LocationFix{}, locErr
	}

	fix, locErr := t.toFix(pos)
	if locErr != nil {
		metrics.FixAttempts.WithLabelValues(string(locErr.Code)).Inc()
		return models.LocationFix{}, locErr
	}

	metrics.FixAttempts.WithLabelValues("ok").Inc()
	return fix, nil
}

// GetHighAccuracyFix retries up to MaxAttempts times, forcing fresh fixes on
// retries. It returns as soon as an excellent fix arrives, otherwise the most
// accurate fix seen. Cancelling ctx between attempts returns the best fix so
// far; an error is returned only when no fix was obtained at all.
func (t *Tracker) GetHighAccuracyFix(ctx context.Context) (models.LocationFix, error) {
	var best *models.LocationFix
	var lastErr error

	for attempt := 1; attempt <= t.config.MaxAttempts; attempt++ {
		if attempt > 1 && !t.sleep(ctx, t.config.RetryDelay) {
			t.logger.WithField("attempt", attempt).Info("⚠️  High-accuracy acquisition cancelled between attempts")
			break
		}

		fix, err := t.GetCurrentFix(ctx, attempt > 1)
		if err != nil {
			lastErr = err
			t.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("⚠️  Fix attempt failed")

			locErr := toLocationError(err)
			if !locErr.Retryable() || ctx.Err() != nil {
				break
			}
			continue
		}

		t.logger.WithFields(logrus.Fields{
			"attempt":    attempt,
			"accuracy_m": fix.Accuracy,
			"quality":    fix.Quality,
		}).Debug("📍 Fix attempt succeeded")

		if best == nil || fix.Accuracy < best.Accuracy {
			f := fix
			best = &f
		}
		if fix.Quality == models.QualityExcellent {
			return fix, nil
		}
	}

	if best != nil {
		return *best, nil
	}
	if lastErr != nil {
		return models.LocationFix{}, lastErr
	}
	// Checked as *LocationError so a nil result never becomes a non-nil error
	if locErr := toLocationError(ctx.Err()); locErr != nil {
		return models.LocationFix{}, locErr
	}
	return models.LocationFix{}, NewLocationError(ErrPositionUnavailable, nil)
}

// sleep waits for d or ctx; it reports whether the full delay elapsed
func (t *Tracker) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscribe registers onUpdate for propagated fixes. Subscribers never
// receive a fix propagated before they subscribed. The returned func
// unsubscribes and is idempotent.
func (t *Tracker) Subscribe(onUpdate func(models.LocationFix)) func() {
	return t.subscribe(onUpdate, nil)
}

// SubscribeErrors registers onError for watch errors
func (t *Tracker) SubscribeErrors(onError func(*LocationError)) func() {
	return t.subscribe(nil, onError)
}

func (t *Tracker) subscribe(onUpdate func(models.LocationFix), onError func(*LocationError)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subscribers = append(t.subscribers, subscriber{id: id, onUpdate: onUpdate, onError: onError})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { t.unsubscribe(id) })
	}
}

func (t *Tracker) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.subscribers {
		if s.id == id {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

// StartTracking subscribes onUpdate (and optional onError) and starts the
// underlying watch if it is not running yet. The watch is released by
// StopTracking, by handle.Stop, or when ctx is done.
func (t *Tracker) StartTracking(ctx context.Context, onUpdate func(models.LocationFix), onError func(*LocationError)) (*TrackingHandle, error) {
	if t.source == nil {
		return nil, NewLocationError(ErrUnsupported, nil)
	}

	t.watchMu.Lock()
	defer t.watchMu.Unlock()

	unsubscribe := func() {}
	if onUpdate != nil || onError != nil {
		unsubscribe = t.subscribe(onUpdate, onError)
	}

	t.mu.Lock()
	running := t.running
	generation := t.generation
	t.mu.Unlock()

	if !running {
		cancel, err := t.source.Watch(PositionOptions{
			HighAccuracy: true,
			Timeout:      t.config.Timeout,
			MaximumAge:   0,
		}, t.handlePosition, t.handleError)
		if err != nil {
			unsubscribe()
			return nil, toLocationError(err)
		}

		t.mu.Lock()
		t.watchCancel = cancel
		t.running = true
		t.filter.Reset()
		generation = t.generation
		t.mu.Unlock()

		t.logger.Info("✅ Continuous tracking started")
	}

	handle := &TrackingHandle{
		ID:         uuid.New().String(),
		tracker:    t,
		generation: generation,
	}
	handle.mu.Lock()
	handle.release = context.AfterFunc(ctx, func() {
		t.StopTracking(handle)
	})
	handle.mu.Unlock()

	return handle, nil
}

// StopTracking cancels the underlying watch and clears all subscribers.
// It is idempotent: stopping a nil, stale or already-stopped handle is a no-op.
func (t *Tracker) StopTracking(handle *TrackingHandle) {
	if handle == nil {
		return
	}
	handle.detach()

	t.watchMu.Lock()
	defer t.watchMu.Unlock()

	t.mu.Lock()
	if !t.running || handle.generation != t.generation {
		t.mu.Unlock()
		return
	}
	cancel := t.watchCancel
	t.watchCancel = nil
	t.running = false
	t.generation++
	t.subscribers = nil
	t.filter.Reset()
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.logger.Info("🔴 Continuous tracking stopped")
}

// IsTracking reports whether the continuous watch is running
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LastFix returns the last propagated fix
func (t *Tracker) LastFix() (models.LocationFix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.Last()
}

// GetStats returns tracking filter statistics
func (t *Tracker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.filter.GetStats()
	stats["tracking"] = t.running
	stats["subscribers"] = len(t.subscribers)
	return stats
}

func (t *Tracker) handlePosition(pos Position) {
	fix, locErr := t.toFix(pos)
	if locErr != nil {
		metrics.LocationUpdates.WithLabelValues("rejected").Inc()
		t.logger.WithField("error", locErr.Error()).Debug("❌ Rejected tracking position")
		return
	}

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	if !t.filter.ShouldPropagate(fix) {
		t.mu.Unlock()
		metrics.LocationUpdates.WithLabelValues("suppressed").Inc()
		return
	}
	subs := append([]subscriber(nil), t.subscribers...)
	t.mu.Unlock()

	metrics.LocationUpdates.WithLabelValues("propagated").Inc()
	for _, s := range subs {
		if s.onUpdate != nil {
			s.onUpdate(fix)
		}
	}
}

func (t *Tracker) handleError(err error) {
	locErr := toLocationError(err)

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	subs := append([]subscriber(nil), t.subscribers...)
	t.mu.Unlock()

	t.logger.WithField("code", locErr.Code).Warn("⚠️  Tracking error")
	for _, s := range subs {
		if s.onError != nil {
			s.onError(locErr)
		}
	}
}

// toFix validates a raw position and derives its quality tier
func (t *Tracker) toFix(pos Position) (models.LocationFix, *LocationError) {
	coord := models.Coordinate{Latitude: pos.Latitude, Longitude: pos.Longitude}
	if !coord.Valid() || math.IsNaN(pos.Latitude) || math.IsNaN(pos.Longitude) {
		return models.LocationFix{}, NewLocationError(ErrPositionUnavailable, nil)
	}
	if pos.Accuracy < 0 || math.IsNaN(pos.Accuracy) {
		return models.LocationFix{}, NewLocationError(ErrPositionUnavailable, nil)
	}

	ts := pos.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	return models.LocationFix{
		Coordinate: coord,
		Accuracy:   pos.Accuracy,
		Heading:    pos.Heading,
		Speed:      pos.Speed,
		Timestamp:  ts,
		Quality:    geo.QualityTier(pos.Accuracy),
	}, nil
}
