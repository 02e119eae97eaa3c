package models

// BinStatus is the advisory status of a bin. The collection record, not this
// status, is the authoritative outcome of a visit.
type BinStatus string

const (
	BinStatusActive      BinStatus = "ACTIVE"
	BinStatusDamaged     BinStatus = "DAMAGED"
	BinStatusMaintenance BinStatus = "MAINTENANCE"
	BinStatusLost        BinStatus = "LOST"
	BinStatusCollected   BinStatus = "COLLECTED"
)

// Valid reports whether s is one of the known statuses
func (s BinStatus) Valid() bool {
	switch s {
	case BinStatusActive, BinStatusDamaged, BinStatusMaintenance, BinStatusLost, BinStatusCollected:
		return true
	}
	return false
}

// MarkerColor is the map marker color used for the status
func (s BinStatus) MarkerColor() string {
	switch s {
	case BinStatusCollected:
		return "green"
	case BinStatusDamaged:
		return "orange"
	case BinStatusMaintenance:
		return "yellow"
	case BinStatusLost:
		return "red"
	default:
		return "blue"
	}
}

type Bin struct {
	ID         string     `json:"bin_id" db:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Address    string     `json:"address" db:"address"`
	Status     BinStatus  `json:"status" db:"status"`
}

// BinRow is the flat shape of a bin in the catalog backend
type BinRow struct {
	ID        string  `json:"bin_id" db:"id"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Address   string  `json:"address" db:"address"`
	Status    string  `json:"status" db:"status"`
}

// ToBin converts a BinRow to a Bin
func (r BinRow) ToBin() Bin {
	return Bin{
		ID:         r.ID,
		Coordinate: Coordinate{Latitude: r.Latitude, Longitude: r.Longitude},
		Address:    r.Address,
		Status:     BinStatus(r.Status),
	}
}

// BinWithDistance is a bin annotated with its distance from a fix
type BinWithDistance struct {
	Bin
	DistanceMeters float64 `json:"distance_meters"`
}
