package database

import (
	"fmt"
	"sort"

	"fieldcollect-backend/internal/models"
	"fieldcollect-backend/internal/services/catalog"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// LoadCatalog reads bins and routes once and builds the immutable catalog
func LoadCatalog(db *sqlx.DB) (*catalog.Catalog, error) {
	var bins []models.BinRow
	if err := db.Select(&bins, `SELECT id, latitude, longitude, address, status FROM bins ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load bins: %w", err)
	}

	var routes []models.RouteRow
	if err := db.Select(&routes, `SELECT id, name FROM routes ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	var members []models.RouteBinRow
	if err := db.Select(&members, `
		SELECT route_id, bin_id, sequence_order
		FROM route_bins
		ORDER BY route_id, sequence_order
	`); err != nil {
		return nil, fmt.Errorf("failed to load route bins: %w", err)
	}

	cat, err := catalogFromRows(bins, routes, members)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bins":   len(bins),
		"routes": len(routes),
	}).Info("📦 Catalog loaded from database")
	return cat, nil
}

// catalogFromRows assembles catalog input from table rows. Members must be
// ordered by sequence_order within each route.
func catalogFromRows(bins []models.BinRow, routes []models.RouteRow, members []models.RouteBinRow) (*catalog.Catalog, error) {
	out := make([]models.Bin, len(bins))
	for i, row := range bins {
		out[i] = row.ToBin()
	}

	byRoute := make(map[string][]string, len(routes))
	for _, m := range members {
		byRoute[m.RouteID] = append(byRoute[m.RouteID], m.BinID)
	}

	defs := make([]models.RouteDefinition, 0, len(routes))
	for _, r := range routes {
		defs = append(defs, models.RouteDefinition{ID: r.ID, Name: r.Name, BinIDs: byRoute[r.ID]})
		delete(byRoute, r.ID)
	}
	if len(byRoute) > 0 {
		orphans := make([]string, 0, len(byRoute))
		for routeID := range byRoute {
			orphans = append(orphans, routeID)
		}
		sort.Strings(orphans)
		return nil, fmt.Errorf("route_bins references unknown routes %v", orphans)
	}

	return catalog.New(out, defs)
}
