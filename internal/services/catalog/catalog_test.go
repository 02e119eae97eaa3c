package catalog

import (
	"testing"
	"time"

	"fieldcollect-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var origin = models.Coordinate{Latitude: 6.9271, Longitude: 79.8612}

// north returns a coordinate roughly meters north of origin
func north(meters float64) models.Coordinate {
	return models.Coordinate{Latitude: origin.Latitude + meters/111195.0, Longitude: origin.Longitude}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	bins := []models.Bin{
		{ID: "BIN-001", Coordinate: north(50), Address: "Galle Face Green"},
		{ID: "BIN-002", Coordinate: north(10), Address: "Lotus Road"},
		{ID: "BIN-003", Coordinate: north(200), Address: "York Street"},
		{ID: "BIN-101", Coordinate: models.Coordinate{Latitude: 6.8868, Longitude: 79.8590}, Address: "Havelock Road"},
	}
	routes := []models.RouteDefinition{
		{ID: "colombo-central", Name: "Colombo Central", BinIDs: []string{"BIN-001", "BIN-002", "BIN-003"}},
		{ID: "colombo-south", Name: "Colombo South", BinIDs: []string{"BIN-101"}},
		{ID: "empty", Name: "Empty"},
	}

	c, err := New(bins, routes)
	require.NoError(t, err)
	return c
}

func record(binID string, status models.RecordStatus) models.CollectionRecord {
	return models.CollectionRecord{BinID: binID, Status: status, Timestamp: time.Now()}
}

func TestNew_Validation(t *testing.T) {
	bin := models.Bin{ID: "A", Coordinate: origin}

	tests := []struct {
		name   string
		bins   []models.Bin
		routes []models.RouteDefinition
		errIs  error
	}{
		{
			name: "duplicate bin",
			bins: []models.Bin{bin, bin},
		},
		{
			name: "invalid coordinate",
			bins: []models.Bin{{ID: "A", Coordinate: models.Coordinate{Latitude: 91}}},
		},
		{
			name: "invalid status",
			bins: []models.Bin{{ID: "A", Coordinate: origin, Status: "BROKEN"}},
		},
		{
			name:   "unknown bin",
			bins:   []models.Bin{bin},
			routes: []models.RouteDefinition{{ID: "r", BinIDs: []string{"B"}}},
			errIs:  ErrUnknownBin,
		},
		{
			name:   "bin in two routes",
			bins:   []models.Bin{bin},
			routes: []models.RouteDefinition{{ID: "r1", BinIDs: []string{"A"}}, {ID: "r2", BinIDs: []string{"A"}}},
		},
		{
			name:   "duplicate route",
			bins:   []models.Bin{bin},
			routes: []models.RouteDefinition{{ID: "r"}, {ID: "r"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.bins, tt.routes)
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := newTestCatalog(t)

	assert.True(t, c.IsValidRoute("colombo-central"))
	assert.False(t, c.IsValidRoute("nowhere"))

	routes := c.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "colombo-central", routes[0].ID)
	assert.Equal(t, "colombo-south", routes[1].ID)

	r, ok := c.Route("colombo-central")
	require.True(t, ok)
	assert.Equal(t, []string{"BIN-001", "BIN-002", "BIN-003"}, r.BinIDs)
	assert.InDelta(t, north(260.0/3).Latitude, r.Center.Latitude, 1e-9)
	assert.InDelta(t, origin.Longitude, r.Center.Longitude, 1e-9)

	// returned routes are copies
	r.BinIDs[0] = "MUTATED"
	again, _ := c.Route("colombo-central")
	assert.Equal(t, "BIN-001", again.BinIDs[0])

	empty, ok := c.Route("empty")
	require.True(t, ok)
	assert.Equal(t, models.Coordinate{}, empty.Center)

	bins := c.BinsForRoute("colombo-central")
	require.Len(t, bins, 3)
	assert.Equal(t, "BIN-002", bins[1].ID)
	assert.Equal(t, models.BinStatusActive, bins[1].Status)

	assert.NotNil(t, c.BinsForRoute("nowhere"))
	assert.Empty(t, c.BinsForRoute("nowhere"))

	owner, ok := c.RouteForBin("BIN-101")
	assert.True(t, ok)
	assert.Equal(t, "colombo-south", owner)

	_, ok = c.Bin("BIN-999")
	assert.False(t, ok)
}

func TestCatalog_Progress(t *testing.T) {
	c := newTestCatalog(t)

	assert.Equal(t, models.RouteProgress{Collected: 0, Total: 3, Percent: 0}, c.Progress("colombo-central", nil))

	one := []models.CollectionRecord{record("BIN-001", models.RecordCollected)}
	assert.Equal(t, models.RouteProgress{Collected: 1, Total: 3, Percent: 33}, c.Progress("colombo-central", one))

	// an override of the same bin does not count twice
	overridden := append(one, record("BIN-001", models.RecordOverrideCollection))
	assert.Equal(t, models.RouteProgress{Collected: 1, Total: 3, Percent: 33}, c.Progress("colombo-central", overridden))

	two := append(one, record("BIN-003", models.RecordMissed))
	assert.Equal(t, models.RouteProgress{Collected: 2, Total: 3, Percent: 67}, c.Progress("colombo-central", two))

	all := append(two, record("BIN-002", models.RecordManualEntry), record("BIN-101", models.RecordCollected))
	assert.Equal(t, models.RouteProgress{Collected: 3, Total: 3, Percent: 100}, c.Progress("colombo-central", all))

	assert.Equal(t, models.RouteProgress{}, c.Progress("empty", all))
	assert.Equal(t, models.RouteProgress{}, c.Progress("nowhere", all))
}

func TestCatalog_NearestUncollectedBin(t *testing.T) {
	c := newTestCatalog(t)
	fix := models.LocationFix{Coordinate: origin, Accuracy: 5}

	nearest, ok := c.NearestUncollectedBin(fix, "colombo-central", nil)
	require.True(t, ok)
	assert.Equal(t, "BIN-002", nearest.ID)
	assert.InDelta(t, 10, nearest.DistanceMeters, 0.5)

	nearest, ok = c.NearestUncollectedBin(fix, "colombo-central", []models.CollectionRecord{record("BIN-002", models.RecordCollected)})
	require.True(t, ok)
	assert.Equal(t, "BIN-001", nearest.ID)
	assert.InDelta(t, 50, nearest.DistanceMeters, 0.5)

	done := []models.CollectionRecord{
		record("BIN-001", models.RecordCollected),
		record("BIN-002", models.RecordCollected),
		record("BIN-003", models.RecordMissed),
	}
	_, ok = c.NearestUncollectedBin(fix, "colombo-central", done)
	assert.False(t, ok)

	_, ok = c.NearestUncollectedBin(fix, "nowhere", nil)
	assert.False(t, ok)
}

func TestCatalog_NearestUncollectedBinTieKeepsCatalogOrder(t *testing.T) {
	same := north(30)
	c, err := New(
		[]models.Bin{
			{ID: "second", Coordinate: same},
			{ID: "first", Coordinate: same},
		},
		[]models.RouteDefinition{{ID: "r", BinIDs: []string{"first", "second"}}},
	)
	require.NoError(t, err)

	nearest, ok := c.NearestUncollectedBin(models.LocationFix{Coordinate: origin}, "r", nil)
	require.True(t, ok)
	assert.Equal(t, "first", nearest.ID)
}
