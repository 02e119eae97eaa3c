package database

import (
	"fmt"

	"fieldcollect-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var colomboBins = []models.BinRow{
	{ID: "BIN-001", Latitude: 6.9344, Longitude: 79.8428, Address: "Fort Railway Station, Olcott Mawatha", Status: "ACTIVE"},
	{ID: "BIN-002", Latitude: 6.9271, Longitude: 79.8450, Address: "Galle Face Green, Galle Road", Status: "ACTIVE"},
	{ID: "BIN-003", Latitude: 6.9167, Longitude: 79.8473, Address: "Slave Island, Union Place", Status: "ACTIVE"},
	{ID: "BIN-004", Latitude: 6.9497, Longitude: 79.8600, Address: "Kotahena, George R. De Silva Mawatha", Status: "ACTIVE"},
	{ID: "BIN-005", Latitude: 6.9553, Longitude: 79.8663, Address: "Mattakkuliya, Aluthmawatha Road", Status: "ACTIVE"},
	{ID: "BIN-006", Latitude: 6.9418, Longitude: 79.8705, Address: "Maradana Railway Station", Status: "MAINTENANCE"},
	{ID: "BIN-007", Latitude: 6.9385, Longitude: 79.8772, Address: "Dematagoda, Baseline Road", Status: "ACTIVE"},
	{ID: "BIN-008", Latitude: 6.8940, Longitude: 79.8555, Address: "Bambalapitiya, Galle Road", Status: "ACTIVE"},
	{ID: "BIN-009", Latitude: 6.8835, Longitude: 79.8588, Address: "Wellawatte Market", Status: "ACTIVE"},
	{ID: "BIN-010", Latitude: 6.9022, Longitude: 79.8612, Address: "Kollupitiya, Duplication Road", Status: "DAMAGED"},
	{ID: "BIN-011", Latitude: 6.9108, Longitude: 79.8795, Address: "Borella Junction", Status: "ACTIVE"},
	{ID: "BIN-012", Latitude: 6.8731, Longitude: 79.8612, Address: "Dehiwala Junction", Status: "ACTIVE"},
}

var colomboRoutes = []models.RouteDefinition{
	{ID: "colombo-central", Name: "Colombo Central", BinIDs: []string{"BIN-001", "BIN-002", "BIN-003"}},
	{ID: "colombo-north", Name: "Colombo North", BinIDs: []string{"BIN-004", "BIN-005", "BIN-006", "BIN-007"}},
	{ID: "colombo-south", Name: "Colombo South", BinIDs: []string{"BIN-010", "BIN-008", "BIN-009", "BIN-012", "BIN-011"}},
}

// DefaultCatalog returns the built-in Colombo catalog used when no database is configured
func DefaultCatalog() ([]models.Bin, []models.RouteDefinition) {
	bins := make([]models.Bin, len(colomboBins))
	for i, row := range colomboBins {
		bins[i] = row.ToBin()
	}

	routes := make([]models.RouteDefinition, len(colomboRoutes))
	for i, r := range colomboRoutes {
		routes[i] = models.RouteDefinition{ID: r.ID, Name: r.Name, BinIDs: append([]string(nil), r.BinIDs...)}
	}
	return bins, routes
}

// SeedCatalog inserts the built-in Colombo catalog. It skips when bins already exist.
func SeedCatalog(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM bins"); err != nil {
		return err
	}

	if count > 0 {
		logrus.Info("✓ Catalog already seeded, skipping...")
		return nil
	}

	logrus.Infof("🌱 Seeding %d bins across %d routes...", len(colomboBins), len(colomboRoutes))

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, bin := range colomboBins {
		if _, err := tx.NamedExec(`
			INSERT INTO bins (id, latitude, longitude, address, status)
			VALUES (:id, :latitude, :longitude, :address, :status)
		`, bin); err != nil {
			return fmt.Errorf("failed to seed bin %s: %w", bin.ID, err)
		}
	}

	for _, route := range colomboRoutes {
		if _, err := tx.Exec(`INSERT INTO routes (id, name) VALUES ($1, $2)`, route.ID, route.Name); err != nil {
			return fmt.Errorf("failed to seed route %s: %w", route.ID, err)
		}
		for i, binID := range route.BinIDs {
			if _, err := tx.Exec(`
				INSERT INTO route_bins (route_id, bin_id, sequence_order)
				VALUES ($1, $2, $3)
			`, route.ID, binID, i); err != nil {
				return fmt.Errorf("failed to seed route bin %s/%s: %w", route.ID, binID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	logrus.Info("✅ Catalog seeded")
	return nil
}
