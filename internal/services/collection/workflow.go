// Package collection drives the scan-to-record state machine of one operator
// session: bin validation, duplicate detection, sensor failure fallback,
// manual entry and missed-bin logging.
package collection

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"fieldcollect-backend/internal/metrics"
	"fieldcollect-backend/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the workflow state of the in-flight scan
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingValidation State = "awaiting_validation"
	StateDuplicate          State = "duplicate"
	StateSensorFailure      State = "sensor_failure"
	StateManualEntryPending State = "manual_entry_pending"
)

// Operator decisions offered alongside feedback
const (
	ActionOverride    = "override"
	ActionCancel      = "cancel"
	ActionManualEntry = "manual_entry"
	ActionMarkMissed  = "mark_missed"
)

// ReasonManualEntry is recorded for manual entries the operator chose without a sensor failure
const ReasonManualEntry = "Manual entry requested"

// BinCatalog is the catalog view the workflow needs
type BinCatalog interface {
	Bin(id string) (models.Bin, bool)
	RouteForBin(id string) (string, bool)
}

// Outcome is the result of one operator input. Record is set only on
// terminal transitions.
type Outcome struct {
	State    State                    `json:"state"`
	Record   *models.CollectionRecord `json:"record,omitempty"`
	Feedback *models.FeedbackEvent    `json:"feedback,omitempty"`
}

// pendingScan is the bin an unresolved scan is about
type pendingScan struct {
	bin           models.Bin
	prior         *models.CollectionRecord
	sensorFailure bool
}

// Workflow is the per-session state machine. Operations are serialized;
// subscribers are notified after the transition completes, records before
// feedback, each list in registration order.
type Workflow struct {
	catalog BinCatalog
	sensor  Sensor
	ledger  *Ledger
	now     func() time.Time
	logger  *logrus.Entry

	mu      sync.Mutex
	state   State
	pending *pendingScan
	overlay map[string]models.BinStatus

	feedbackSubs subscriberList[models.FeedbackEvent]
	recordSubs   subscriberList[models.CollectionRecord]
}

// NewWorkflow creates an idle workflow with an empty ledger
func NewWorkflow(catalog BinCatalog, sensor Sensor) *Workflow {
	return &Workflow{
		catalog: catalog,
		sensor:  sensor,
		ledger:  &Ledger{},
		now:     time.Now,
		logger:  logrus.WithField("component", "collection_workflow"),
		state:   StateIdle,
		overlay: make(map[string]models.BinStatus),
	}
}

// Scan handles a scanned bin ID
func (w *Workflow) Scan(ctx context.Context, binID string) (Outcome, error) {
	binID = strings.TrimSpace(binID)

	w.mu.Lock()
	out, err := w.scan(ctx, binID)
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) scan(ctx context.Context, binID string) (Outcome, error) {
	if w.state != StateIdle {
		return w.outcome(nil, nil), transitionError("scan", w.state)
	}

	bin, ok := w.catalog.Bin(binID)
	if !ok {
		metrics.ScanOutcomes.WithLabelValues("invalid").Inc()
		w.logger.WithField("bin_id", binID).Warn("❌ Scanned unknown bin")
		fb := w.feedback(models.FeedbackError, fmt.Sprintf("Invalid bin ID: %s. Please scan again.", binID), models.FeedbackOptions{BinID: binID})
		return w.outcome(nil, fb), &InvalidBinError{BinID: binID}
	}

	if prior, dup := w.ledger.Latest(bin.ID); dup {
		metrics.ScanOutcomes.WithLabelValues("duplicate").Inc()
		w.state = StateDuplicate
		w.pending = &pendingScan{bin: bin, prior: &prior}

		ts := prior.Timestamp
		fb := w.feedback(models.FeedbackWarning,
			fmt.Sprintf("Bin %s was already recorded at %s. Override or cancel?", bin.ID, ts.Format("15:04:05")),
			models.FeedbackOptions{BinID: bin.ID, PriorTimestamp: &ts, Actions: []string{ActionOverride, ActionCancel}})
		return w.outcome(nil, fb), nil
	}

	w.state = StateAwaitingValidation
	w.pending = &pendingScan{bin: bin}
	return w.collect(ctx, models.RecordCollected, nil)
}

// collect reads the sensor for the pending bin and either emits a record or
// falls back to SensorFailure
func (w *Workflow) collect(ctx context.Context, status models.RecordStatus, reason *string) (Outcome, error) {
	bin := w.pending.bin

	reading, err := w.sensor.Read(ctx, bin)
	if err != nil {
		metrics.ScanOutcomes.WithLabelValues("sensor_failure").Inc()
		w.logger.WithFields(logrus.Fields{
			"bin_id": bin.ID,
			"error":  err.Error(),
		}).Warn("⚠️  Sensor failure, manual entry required")

		w.state = StateSensorFailure
		w.pending.sensorFailure = true
		fb := w.feedback(models.FeedbackWarning,
			fmt.Sprintf("Sensor failure on bin %s. Please enter the weight manually.", bin.ID),
			models.FeedbackOptions{BinID: bin.ID, Actions: []string{ActionManualEntry, ActionMarkMissed}})
		return w.outcome(nil, fb), nil
	}

	fill := reading.FillLevel
	rec := w.newRecord(bin, status, reason)
	rec.Weight = reading.Weight
	rec.FillLevel = &fill
	rec.WasteType = reading.WasteType
	w.commit(rec)

	msg := fmt.Sprintf("Bin %s collected: %.1f kg", bin.ID, rec.Weight)
	outcome := "collected"
	if status == models.RecordOverrideCollection {
		msg = fmt.Sprintf("Bin %s re-collected: %.1f kg", bin.ID, rec.Weight)
		outcome = "override"
	}
	metrics.ScanOutcomes.WithLabelValues(outcome).Inc()

	fb := w.feedback(models.FeedbackSuccess, msg, models.FeedbackOptions{BinID: bin.ID})
	return w.outcome(&rec, fb), nil
}

// Override re-collects the bin of a pending duplicate scan
func (w *Workflow) Override(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	out, err := w.override(ctx)
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) override(ctx context.Context) (Outcome, error) {
	if w.state != StateDuplicate {
		return w.outcome(nil, nil), transitionError("override", w.state)
	}

	reason := models.ReasonRecollection
	w.state = StateAwaitingValidation
	return w.collect(ctx, models.RecordOverrideCollection, &reason)
}

// Cancel abandons a pending duplicate scan or a manual entry the operator
// opened voluntarily. A sensor failure cannot be cancelled: it resolves
// through manual entry or a missed record.
func (w *Workflow) Cancel() (Outcome, error) {
	w.mu.Lock()
	out, err := w.cancel()
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) cancel() (Outcome, error) {
	switch {
	case w.state == StateDuplicate:
	case w.state == StateManualEntryPending && !w.pending.sensorFailure:
	default:
		return w.outcome(nil, nil), transitionError("cancel", w.state)
	}

	binID := w.pending.bin.ID
	w.reset()
	metrics.ScanOutcomes.WithLabelValues("cancelled").Inc()

	fb := w.feedback(models.FeedbackInfo, fmt.Sprintf("Scan of bin %s cancelled", binID), models.FeedbackOptions{BinID: binID})
	return w.outcome(nil, fb), nil
}

// RequestManualEntry opens the manual entry form. From Idle it targets binID;
// after a sensor failure it targets the failed bin and binID may be empty.
func (w *Workflow) RequestManualEntry(binID string) (Outcome, error) {
	binID = strings.TrimSpace(binID)

	w.mu.Lock()
	out, err := w.requestManualEntry(binID)
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) requestManualEntry(binID string) (Outcome, error) {
	switch w.state {
	case StateSensorFailure:
		if binID != "" && binID != w.pending.bin.ID {
			return w.outcome(nil, nil), transitionError("manual entry for another bin", w.state)
		}
	case StateIdle:
		bin, fb, err := w.resolveNew(binID)
		if err != nil {
			return w.outcome(nil, fb), err
		}
		w.pending = &pendingScan{bin: bin}
	default:
		return w.outcome(nil, nil), transitionError("manual entry", w.state)
	}

	w.state = StateManualEntryPending
	fb := w.feedback(models.FeedbackInfo,
		fmt.Sprintf("Enter weight and waste type for bin %s", w.pending.bin.ID),
		models.FeedbackOptions{BinID: w.pending.bin.ID})
	return w.outcome(nil, fb), nil
}

// SubmitManualEntry records an operator-entered weight for the pending bin
func (w *Workflow) SubmitManualEntry(weight float64, wasteType string) (Outcome, error) {
	w.mu.Lock()
	out, err := w.submitManualEntry(weight, strings.TrimSpace(wasteType))
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) submitManualEntry(weight float64, wasteType string) (Outcome, error) {
	if w.state != StateSensorFailure && w.state != StateManualEntryPending {
		return w.outcome(nil, nil), transitionError("manual entry", w.state)
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return w.outcome(nil, nil), ErrInvalidWeight
	}
	if wasteType == "" {
		wasteType = defaultWasteType
	}

	reason := ReasonManualEntry
	if w.pending.sensorFailure {
		reason = models.ReasonSensorFailure
	}

	bin := w.pending.bin
	rec := w.newRecord(bin, models.RecordManualEntry, &reason)
	rec.Weight = weight
	rec.WasteType = wasteType
	w.commit(rec)
	metrics.ScanOutcomes.WithLabelValues("manual_entry").Inc()

	fb := w.feedback(models.FeedbackSuccess,
		fmt.Sprintf("Manual entry saved for bin %s: %.1f kg", bin.ID, weight),
		models.FeedbackOptions{BinID: bin.ID})
	return w.outcome(&rec, fb), nil
}

// MarkMissed records that a bin could not be collected. From Idle it targets
// binID; while a sensor failure or manual entry is pending it targets that
// bin and binID may be empty.
func (w *Workflow) MarkMissed(binID string, reason models.MissedReason) (Outcome, error) {
	binID = strings.TrimSpace(binID)

	w.mu.Lock()
	out, err := w.markMissed(binID, reason)
	w.mu.Unlock()

	w.deliver(out)
	return out, err
}

func (w *Workflow) markMissed(binID string, reason models.MissedReason) (Outcome, error) {
	if !reason.Valid() {
		return w.outcome(nil, nil), fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	var bin models.Bin
	switch w.state {
	case StateSensorFailure, StateManualEntryPending:
		if binID != "" && binID != w.pending.bin.ID {
			return w.outcome(nil, nil), transitionError("mark another bin missed", w.state)
		}
		bin = w.pending.bin
	case StateIdle:
		var fb *models.FeedbackEvent
		var err error
		bin, fb, err = w.resolveNew(binID)
		if err != nil {
			return w.outcome(nil, fb), err
		}
	default:
		return w.outcome(nil, nil), transitionError("mark missed", w.state)
	}

	r := string(reason)
	rec := w.newRecord(bin, models.RecordMissed, &r)
	w.commit(rec)
	metrics.ScanOutcomes.WithLabelValues("missed").Inc()

	fb := w.feedback(models.FeedbackInfo,
		fmt.Sprintf("Bin %s marked as missed (%s)", bin.ID, reason),
		models.FeedbackOptions{BinID: bin.ID})
	return w.outcome(&rec, fb), nil
}

// resolveNew validates a bin for an Idle-state input that must not duplicate an existing record
func (w *Workflow) resolveNew(binID string) (models.Bin, *models.FeedbackEvent, error) {
	bin, ok := w.catalog.Bin(binID)
	if !ok {
		fb := w.feedback(models.FeedbackError, fmt.Sprintf("Invalid bin ID: %s. Please scan again.", binID), models.FeedbackOptions{BinID: binID})
		return models.Bin{}, fb, &InvalidBinError{BinID: binID}
	}
	if prior, dup := w.ledger.Latest(bin.ID); dup {
		ts := prior.Timestamp
		fb := w.feedback(models.FeedbackWarning,
			fmt.Sprintf("Bin %s already has a %s record. Scan it to re-collect.", bin.ID, prior.Status),
			models.FeedbackOptions{BinID: bin.ID, PriorTimestamp: &ts})
		return models.Bin{}, fb, ErrDuplicateRecord
	}
	return bin, nil, nil
}

// Publish emits a feedback event that did not come from a transition, such
// as a tracking error
func (w *Workflow) Publish(category models.FeedbackCategory, message string) models.FeedbackEvent {
	fb := w.feedback(category, message, models.FeedbackOptions{})
	w.deliver(Outcome{Feedback: fb})
	return *fb
}

func (w *Workflow) newRecord(bin models.Bin, status models.RecordStatus, reason *string) models.CollectionRecord {
	routeID, _ := w.catalog.RouteForBin(bin.ID)
	return models.CollectionRecord{
		ID:        uuid.New().String(),
		BinID:     bin.ID,
		RouteID:   routeID,
		Location:  bin.Address,
		Timestamp: w.now(),
		Status:    status,
		Reason:    reason,
	}
}

// commit appends rec, updates the advisory status and returns to Idle
func (w *Workflow) commit(rec models.CollectionRecord) {
	w.ledger.Append(rec)
	metrics.RecordsEmitted.WithLabelValues(string(rec.Status)).Inc()

	switch {
	case rec.Status.CountsWeight():
		w.overlay[rec.BinID] = models.BinStatusCollected
	case rec.Reason != nil && *rec.Reason == string(models.MissedDamaged):
		w.overlay[rec.BinID] = models.BinStatusDamaged
	case rec.Reason != nil && *rec.Reason == string(models.MissedNotPresent):
		w.overlay[rec.BinID] = models.BinStatusLost
	}

	w.logger.WithFields(logrus.Fields{
		"bin_id":    rec.BinID,
		"route_id":  rec.RouteID,
		"status":    rec.Status,
		"weight_kg": rec.Weight,
	}).Info("📝 Collection record appended")

	w.reset()
}

func (w *Workflow) reset() {
	w.state = StateIdle
	w.pending = nil
}

func (w *Workflow) feedback(category models.FeedbackCategory, message string, opts models.FeedbackOptions) *models.FeedbackEvent {
	opts.Cue = category.Cue()
	return &models.FeedbackEvent{Category: category, Message: message, Options: opts}
}

func (w *Workflow) outcome(rec *models.CollectionRecord, fb *models.FeedbackEvent) Outcome {
	return Outcome{State: w.state, Record: rec, Feedback: fb}
}

func (w *Workflow) deliver(out Outcome) {
	if out.Record != nil {
		w.recordSubs.publish(*out.Record)
	}
	if out.Feedback != nil {
		metrics.FeedbackEvents.WithLabelValues(string(out.Feedback.Category)).Inc()
		w.feedbackSubs.publish(*out.Feedback)
	}
}

// SubscribeFeedback registers fn for feedback events; the returned func unsubscribes and is idempotent
func (w *Workflow) SubscribeFeedback(fn func(models.FeedbackEvent)) func() {
	return w.feedbackSubs.add(fn)
}

// SubscribeRecords registers fn for appended records; the returned func unsubscribes and is idempotent
func (w *Workflow) SubscribeRecords(fn func(models.CollectionRecord)) func() {
	return w.recordSubs.add(fn)
}

// State returns the current state
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PendingBin returns the bin of the unresolved scan, if any
func (w *Workflow) PendingBin() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return "", false
	}
	return w.pending.bin.ID, true
}

// Records returns the session ledger in append order
func (w *Workflow) Records() []models.CollectionRecord {
	return w.ledger.Records()
}

// RecordCount returns the number of ledger entries
func (w *Workflow) RecordCount() int {
	return w.ledger.Len()
}

// TotalWeight is the sum of weights of collected, override and manual records
func (w *Workflow) TotalWeight() float64 {
	return w.ledger.TotalWeight()
}

// StatusOf returns the advisory status of a bin for this session, falling
// back to its catalog status
func (w *Workflow) StatusOf(bin models.Bin) models.BinStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.overlay[bin.ID]; ok {
		return s
	}
	return bin.Status
}

// subscriberList fans values out in registration order
type subscriberList[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

func (l *subscriberList[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.subs {
				if s.id == id {
					l.subs = append(l.subs[:i], l.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *subscriberList[T]) publish(v T) {
	l.mu.Lock()
	subs := append([]subscription[T](nil), l.subs...)
	l.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}
