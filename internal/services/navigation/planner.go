// Package navigation picks the next destination for an operator and splits
// a route into completed, remaining and in-transit segments for the map.
package navigation

import (
	"sync"

	"fieldcollect-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// RouteView is the catalog surface the planner reads
type RouteView interface {
	Route(id string) (models.Route, bool)
	BinsForRoute(routeID string) []models.Bin
	Progress(routeID string, records []models.CollectionRecord) models.RouteProgress
	NearestUncollectedBin(fix models.LocationFix, routeID string, records []models.CollectionRecord) (models.BinWithDistance, bool)
}

// Planner combines the latest propagated fix with the catalog and the
// session's records. One planner serves one session.
type Planner struct {
	routes RouteView
	cache  *segmentCache
	logger *logrus.Entry

	mu         sync.RWMutex
	currentFix *models.LocationFix
	tracking   bool
}

// NewPlanner creates a planner over routes
func NewPlanner(routes RouteView) *Planner {
	return &Planner{
		routes: routes,
		cache:  newSegmentCache(),
		logger: logrus.WithField("component", "navigation_planner"),
	}
}

// OnFix records the latest propagated fix. It is shaped to be passed
// directly to a tracker subscription.
func (p *Planner) OnFix(fix models.LocationFix) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentFix = &fix
}

// SetTracking records whether continuous tracking is active
func (p *Planner) SetTracking(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracking = active
}

// CurrentFix returns the latest fix seen
func (p *Planner) CurrentFix() (models.LocationFix, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentFix == nil {
		return models.LocationFix{}, false
	}
	return *p.currentFix, true
}

func (p *Planner) trackingFix() (*models.LocationFix, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentFix, p.tracking
}

// CenterFor returns the route's precomputed center, or the zero coordinate
// for an unknown route
func (p *Planner) CenterFor(routeID string) models.Coordinate {
	r, ok := p.routes.Route(routeID)
	if !ok {
		return models.Coordinate{}
	}
	return r.Center
}

// Progress returns distinct-bin progress for the route
func (p *Planner) Progress(routeID string, records []models.CollectionRecord) models.RouteProgress {
	return p.routes.Progress(routeID, records)
}

// NextDestination returns the nearest bin without a record, measured from the latest fix
func (p *Planner) NextDestination(routeID string, records []models.CollectionRecord) (models.NextDestination, bool) {
	fix, ok := p.CurrentFix()
	if !ok {
		return models.NextDestination{}, false
	}

	bin, ok := p.routes.NearestUncollectedBin(fix, routeID, records)
	if !ok {
		return models.NextDestination{}, false
	}

	return models.NextDestination{
		BinID:          bin.ID,
		Address:        bin.Address,
		Coordinate:     bin.Coordinate,
		DistanceMeters: bin.DistanceMeters,
	}, true
}

// SegmentRoute partitions the route's bins by whether they have a record.
// Navigation is [current fix, nearest uncollected bin] while tracking with a
// fix, otherwise empty. The result is cached by route, tracking state and
// record count: repeated calls with an unchanged key return the same
// pointer without recomputing. Callers must not modify it.
func (p *Planner) SegmentRoute(routeID string, records []models.CollectionRecord) *models.RouteSegments {
	fix, tracking := p.trackingFix()
	key := segmentKey{routeID: routeID, trackingActive: tracking, recordCount: len(records)}

	if segments, ok := p.cache.get(key); ok {
		return segments
	}

	segments := p.segment(routeID, records, fix, tracking)
	p.cache.set(key, segments)

	p.logger.WithFields(logrus.Fields{
		"route_id":  routeID,
		"completed": len(segments.Completed),
		"remaining": len(segments.Remaining),
		"tracking":  tracking,
	}).Debug("🗺️  Route segments recomputed")

	return segments
}

func (p *Planner) segment(routeID string, records []models.CollectionRecord, fix *models.LocationFix, tracking bool) *models.RouteSegments {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.BinID] = true
	}

	segments := &models.RouteSegments{
		RouteID:    routeID,
		Completed:  []models.Coordinate{},
		Remaining:  []models.Coordinate{},
		Navigation: []models.Coordinate{},
	}
	for _, b := range p.routes.BinsForRoute(routeID) {
		if seen[b.ID] {
			segments.Completed = append(segments.Completed, b.Coordinate)
		} else {
			segments.Remaining = append(segments.Remaining, b.Coordinate)
		}
	}

	if tracking && fix != nil {
		if next, ok := p.routes.NearestUncollectedBin(*fix, routeID, records); ok {
			segments.Navigation = []models.Coordinate{fix.Coordinate, next.Coordinate}
		}
	}

	return segments
}

// Invalidate drops the cached segmentation of a route
func (p *Planner) Invalidate(routeID string) {
	p.cache.invalidate(routeID)
}

// MapState builds the renderer payload for a route. statusOf supplies the
// advisory status for marker colors; nil uses catalog status.
func (p *Planner) MapState(routeID string, records []models.CollectionRecord, statusOf func(models.Bin) models.BinStatus) models.MapState {
	segments := p.SegmentRoute(routeID, records)

	bins := p.routes.BinsForRoute(routeID)
	markers := make([]models.MapMarker, 0, len(bins))
	for _, b := range bins {
		status := b.Status
		if statusOf != nil {
			status = statusOf(b)
		}
		markers = append(markers, models.MapMarker{
			BinID:      b.ID,
			Coordinate: b.Coordinate,
			Status:     status,
			Color:      status.MarkerColor(),
		})
	}

	return models.MapState{
		RouteID:               routeID,
		Center:                p.CenterFor(routeID),
		CompletedCoordinates:  segments.Completed,
		RemainingCoordinates:  segments.Remaining,
		NavigationCoordinates: segments.Navigation,
		Markers:               markers,
	}
}

// CacheStats returns segmentation cache counters
func (p *Planner) CacheStats() CacheStats {
	return p.cache.snapshot()
}

// GetStats returns segmentation cache statistics
func (p *Planner) GetStats() map[string]interface{} {
	return p.cache.GetStats()
}
