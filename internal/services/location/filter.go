package location

import (
	"fmt"
	"time"

	"fieldcollect-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// UpdateFilter decides which continuous-tracking fixes reach subscribers.
// A fix passes when its accuracy is within the threshold or when the update
// interval has elapsed since the last propagated fix. The filter is not safe
// for concurrent use; the Tracker serializes access.
type UpdateFilter struct {
	accuracyThreshold float64
	updateInterval    time.Duration
	last              *models.LocationFix
	stats             FilterStats
}

// FilterStats tracks filter decisions
type FilterStats struct {
	Propagated int64
	Suppressed int64
	OutOfOrder int64
}

// NewUpdateFilter creates a filter with the given accuracy threshold (meters) and interval
func NewUpdateFilter(accuracyThreshold float64, updateInterval time.Duration) *UpdateFilter {
	return &UpdateFilter{
		accuracyThreshold: accuracyThreshold,
		updateInterval:    updateInterval,
	}
}

// ShouldPropagate records and returns the decision for fix
func (f *UpdateFilter) ShouldPropagate(fix models.LocationFix) bool {
	// First fix since start - always propagate
	if f.last == nil {
		f.accept(fix)
		return true
	}

	// Timestamps are monotonic; an older sample never supersedes a newer one
	if fix.Timestamp.Before(f.last.Timestamp) {
		f.stats.OutOfOrder++
		return false
	}

	// OPTION 1: accurate enough to forward immediately
	if fix.Accuracy <= f.accuracyThreshold {
		f.accept(fix)
		return true
	}

	// OPTION 2: time-based fallback so consumers never go stale
	elapsed := fix.Timestamp.Sub(f.last.Timestamp)
	if elapsed >= f.updateInterval {
		logrus.WithFields(logrus.Fields{
			"elapsed":    elapsed.String(),
			"accuracy_m": fix.Accuracy,
		}).Debug("⏱️  Time-based location propagation")
		f.accept(fix)
		return true
	}

	f.stats.Suppressed++
	return false
}

func (f *UpdateFilter) accept(fix models.LocationFix) {
	f.last = &fix
	f.stats.Propagated++
}

// Last returns the last propagated fix
func (f *UpdateFilter) Last() (models.LocationFix, bool) {
	if f.last == nil {
		return models.LocationFix{}, false
	}
	return *f.last, true
}

// Reset forgets the last propagated fix (call when tracking stops)
func (f *UpdateFilter) Reset() {
	f.last = nil
}

// GetStats returns filter statistics
func (f *UpdateFilter) GetStats() map[string]interface{} {
	total := f.stats.Propagated + f.stats.Suppressed + f.stats.OutOfOrder
	suppressRate := 0.0
	if total > 0 {
		suppressRate = float64(f.stats.Suppressed+f.stats.OutOfOrder) / float64(total) * 100
	}

	return map[string]interface{}{
		"propagated":           f.stats.Propagated,
		"suppressed":           f.stats.Suppressed,
		"out_of_order":         f.stats.OutOfOrder,
		"suppress_rate":        fmt.Sprintf("%.2f%%", suppressRate),
		"accuracy_threshold_m": f.accuracyThreshold,
		"update_interval_s":    f.updateInterval.Seconds(),
	}
}
