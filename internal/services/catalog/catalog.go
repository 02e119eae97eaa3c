// Package catalog is the static, read-only route to bin partition. It is
// built once and shared between sessions without locking.
package catalog

import (
	"errors"
	"fmt"
	"math"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/geo"

	"github.com/sirupsen/logrus"
)

// ErrUnknownBin is returned by New when a route references a bin that does not exist
var ErrUnknownBin = errors.New("route references unknown bin")

// Catalog maps routes to their ordered bins. Unknown route lookups return
// empty results rather than errors; callers check IsValidRoute first.
type Catalog struct {
	bins       map[string]models.Bin
	routes     map[string]models.Route
	routeOrder []string
	binRoute   map[string]string
}

// New validates and indexes the catalog. Bin and route IDs must be unique,
// coordinates valid, and a bin may belong to at most one route.
func New(bins []models.Bin, routes []models.RouteDefinition) (*Catalog, error) {
	c := &Catalog{
		bins:     make(map[string]models.Bin, len(bins)),
		routes:   make(map[string]models.Route, len(routes)),
		binRoute: make(map[string]string),
	}

	for _, b := range bins {
		if b.ID == "" {
			return nil, errors.New("bin with empty id")
		}
		if _, exists := c.bins[b.ID]; exists {
			return nil, fmt.Errorf("duplicate bin id %q", b.ID)
		}
		if !b.Coordinate.Valid() {
			return nil, fmt.Errorf("bin %q has invalid coordinate %s", b.ID, b.Coordinate)
		}
		if b.Status == "" {
			b.Status = models.BinStatusActive
		}
		if !b.Status.Valid() {
			return nil, fmt.Errorf("bin %q has invalid status %q", b.ID, b.Status)
		}
		c.bins[b.ID] = b
	}

	for _, def := range routes {
		if def.ID == "" {
			return nil, errors.New("route with empty id")
		}
		if _, exists := c.routes[def.ID]; exists {
			return nil, fmt.Errorf("duplicate route id %q", def.ID)
		}

		binIDs := make([]string, 0, len(def.BinIDs))
		points := make([]models.Coordinate, 0, len(def.BinIDs))
		for _, id := range def.BinIDs {
			bin, ok := c.bins[id]
			if !ok {
				return nil, fmt.Errorf("route %q: %w: %q", def.ID, ErrUnknownBin, id)
			}
			if owner, taken := c.binRoute[id]; taken {
				return nil, fmt.Errorf("bin %q belongs to both route %q and route %q", id, owner, def.ID)
			}
			c.binRoute[id] = def.ID
			binIDs = append(binIDs, id)
			points = append(points, bin.Coordinate)
		}

		c.routes[def.ID] = models.Route{
			ID:     def.ID,
			Name:   def.Name,
			BinIDs: binIDs,
			Center: geo.Centroid(points),
		}
		c.routeOrder = append(c.routeOrder, def.ID)
	}

	logrus.WithFields(logrus.Fields{
		"bins":   len(c.bins),
		"routes": len(c.routes),
	}).Info("✅ Route catalog loaded")

	return c, nil
}

// Route returns the route with id
func (c *Catalog) Route(id string) (models.Route, bool) {
	r, ok := c.routes[id]
	if !ok {
		return models.Route{}, false
	}
	return copyRoute(r), true
}

// Routes lists routes in catalog order
func (c *Catalog) Routes() []models.Route {
	out := make([]models.Route, 0, len(c.routeOrder))
	for _, id := range c.routeOrder {
		out = append(out, copyRoute(c.routes[id]))
	}
	return out
}

func copyRoute(r models.Route) models.Route {
	r.BinIDs = append([]string(nil), r.BinIDs...)
	return r
}

// IsValidRoute reports whether id names a route
func (c *Catalog) IsValidRoute(id string) bool {
	_, ok := c.routes[id]
	return ok
}

// BinsForRoute returns the route's bins in traversal order, or an empty
// slice for an unknown route
func (c *Catalog) BinsForRoute(routeID string) []models.Bin {
	r, ok := c.routes[routeID]
	if !ok {
		return []models.Bin{}
	}
	out := make([]models.Bin, 0, len(r.BinIDs))
	for _, id := range r.BinIDs {
		out = append(out, c.bins[id])
	}
	return out
}

// Bin looks up a bin anywhere in the catalog
func (c *Catalog) Bin(id string) (models.Bin, bool) {
	b, ok := c.bins[id]
	return b, ok
}

// RouteForBin returns the id of the route that owns bin id
func (c *Catalog) RouteForBin(id string) (string, bool) {
	r, ok := c.binRoute[id]
	return r, ok
}

// visited returns the set of bin IDs that have at least one record
func visited(records []models.CollectionRecord) map[string]bool {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.BinID] = true
	}
	return seen
}

// Progress counts distinct route bins with a record. Repeat records for one
// bin (overrides) do not inflate it.
func (c *Catalog) Progress(routeID string, records []models.CollectionRecord) models.RouteProgress {
	bins := c.BinsForRoute(routeID)
	seen := visited(records)

	collected := 0
	for _, b := range bins {
		if seen[b.ID] {
			collected++
		}
	}

	p := models.RouteProgress{Collected: collected, Total: len(bins)}
	if p.Total > 0 {
		p.Percent = int(math.Round(100 * float64(collected) / float64(p.Total)))
	}
	return p
}

// UncollectedBins returns the route's bins without a record, in traversal order
func (c *Catalog) UncollectedBins(routeID string, records []models.CollectionRecord) []models.Bin {
	seen := visited(records)
	var out []models.Bin
	for _, b := range c.BinsForRoute(routeID) {
		if !seen[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// NearestUncollectedBin returns the closest route bin without a record.
// Ties go to the bin earlier in traversal order.
func (c *Catalog) NearestUncollectedBin(fix models.LocationFix, routeID string, records []models.CollectionRecord) (models.BinWithDistance, bool) {
	var best models.BinWithDistance
	found := false
	bestDistance := math.MaxFloat64

	for _, b := range c.UncollectedBins(routeID, records) {
		distance := geo.DistanceMeters(fix.Coordinate, b.Coordinate)
		// Strict less-than keeps the first of equal candidates
		if distance < bestDistance {
			bestDistance = distance
			best = models.BinWithDistance{Bin: b, DistanceMeters: distance}
			found = true
		}
	}

	return best, found
}
