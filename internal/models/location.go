package models

import (
	"fmt"
	"time"
)

// Coordinate is a WGS-84 point in decimal degrees
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies inside the latitude/longitude ranges
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// Quality is the coarse accuracy bucket of a fix
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Rank orders qualities from best (0) to worst (3)
func (q Quality) Rank() int {
	switch q {
	case QualityExcellent:
		return 0
	case QualityGood:
		return 1
	case QualityFair:
		return 2
	default:
		return 3
	}
}

// LocationFix is a single qualified GPS sample. Fixes are values: a newer fix
// supersedes an older one, it never mutates it.
type LocationFix struct {
	Coordinate
	Accuracy  float64   `json:"accuracy"`            // GPS accuracy in meters
	Heading   *float64  `json:"heading,omitempty"`   // Direction of travel (0-360 degrees)
	Speed     *float64  `json:"speed,omitempty"`     // Speed in m/s
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
}
