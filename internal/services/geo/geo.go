// Package geo holds the pure distance and fix-quality functions shared by the
// tracker, the route catalog and the navigation planner.
package geo

import (
	"math"

	"fieldcollect-backend/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula
const EarthRadiusMeters = 6371000.0

// Accuracy thresholds (meters) for the quality tiers
const (
	ExcellentAccuracy = 5.0
	GoodAccuracy      = 10.0
	FairAccuracy      = 100.0
)

// DistanceMeters calculates the great-circle distance between two coordinates in meters
func DistanceMeters(a, b models.Coordinate) float64 {
	if a == b {
		return 0
	}

	// Convert to radians
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLon := (b.Longitude - a.Longitude) * math.Pi / 180

	// Haversine formula
	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// QualityTier buckets a GPS accuracy radius. Smaller accuracy never yields a worse tier.
func QualityTier(accuracyMeters float64) models.Quality {
	switch {
	case math.IsNaN(accuracyMeters):
		return models.QualityPoor
	case accuracyMeters <= ExcellentAccuracy:
		return models.QualityExcellent
	case accuracyMeters <= GoodAccuracy:
		return models.QualityGood
	case accuracyMeters <= FairAccuracy:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}

// Centroid returns the arithmetic mean of the coordinates, or the zero
// coordinate for an empty slice
func Centroid(points []models.Coordinate) models.Coordinate {
	if len(points) == 0 {
		return models.Coordinate{}
	}

	var lat, lng float64
	for _, p := range points {
		lat += p.Latitude
		lng += p.Longitude
	}
	n := float64(len(points))
	return models.Coordinate{Latitude: lat / n, Longitude: lng / n}
}
