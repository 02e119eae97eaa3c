package collection

import (
	"sync"

	"fieldcollect-backend/internal/models"
)

// Ledger is the append-only record log of one session
type Ledger struct {
	mu      sync.RWMutex
	records []models.CollectionRecord
}

// Append adds a record; records are never mutated or removed
func (l *Ledger) Append(r models.CollectionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Records returns a copy of all records in append order
func (l *Ledger) Records() []models.CollectionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.CollectionRecord(nil), l.records...)
}

// Len returns the number of records
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Latest returns the most recent record for binID
func (l *Ledger) Latest(binID string) (models.CollectionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].BinID == binID {
			return l.records[i], true
		}
	}
	return models.CollectionRecord{}, false
}

// TotalWeight sums weight over records whose status counts toward it.
// Missed records never contribute.
func (l *Ledger) TotalWeight() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0.0
	for _, r := range l.records {
		if r.Status.CountsWeight() {
			total += r.Weight
		}
	}
	return total
}
