package models

import "time"

// RecordStatus is the outcome of one resolved scan
type RecordStatus string

const (
	RecordCollected          RecordStatus = "Collected"
	RecordOverrideCollection RecordStatus = "OverrideCollection"
	RecordManualEntry        RecordStatus = "ManualEntry"
	RecordMissed             RecordStatus = "Missed"
)

// CountsWeight reports whether records with this status contribute to total weight
func (s RecordStatus) CountsWeight() bool {
	return s == RecordCollected || s == RecordOverrideCollection || s == RecordManualEntry
}

// MissedReason explains why a bin could not be collected
type MissedReason string

const (
	MissedBlocked     MissedReason = "Blocked"
	MissedDamaged     MissedReason = "Damaged"
	MissedOverflowing MissedReason = "Overflowing"
	MissedNotPresent  MissedReason = "NotPresent"
)

// Valid reports whether r is one of the known reasons
func (r MissedReason) Valid() bool {
	switch r {
	case MissedBlocked, MissedDamaged, MissedOverflowing, MissedNotPresent:
		return true
	}
	return false
}

const (
	ReasonRecollection  = "Re-collection requested"
	ReasonSensorFailure = "Sensor failure"
)

// CollectionRecord is an append-only ledger entry for one bin visit
type CollectionRecord struct {
	ID        string       `json:"id"`
	BinID     string       `json:"bin_id"`
	RouteID   string       `json:"route_id,omitempty"`
	Location  string       `json:"location"` // Address snapshot at the time of the visit
	Timestamp time.Time    `json:"timestamp"`
	Weight    float64      `json:"weight"` // Kilograms
	FillLevel *int         `json:"fill_level,omitempty"`
	WasteType string       `json:"waste_type,omitempty"`
	Status    RecordStatus `json:"status"`
	Reason    *string      `json:"reason,omitempty"`
}

// RecordResponse is what we send to the client with ISO timestamps
type RecordResponse struct {
	CollectionRecord
	TimestampIso string `json:"timestamp_iso"`
}

// ToRecordResponse converts a CollectionRecord to RecordResponse
func (r *CollectionRecord) ToRecordResponse() RecordResponse {
	return RecordResponse{
		CollectionRecord: *r,
		TimestampIso:     r.Timestamp.Format(time.RFC3339),
	}
}
