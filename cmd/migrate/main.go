package main

import (
	"fmt"

	"fieldcollect-backend/internal/config"
	"fieldcollect-backend/internal/database"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal(err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logrus.Fatalf("Migration failed: %v", err)
	}
	if err := database.SeedCatalog(db); err != nil {
		logrus.Fatalf("Seeding failed: %v", err)
	}

	var result struct {
		TotalBins   int `db:"total_bins"`
		ActiveBins  int `db:"active_bins"`
		Routes      int `db:"routes"`
		UnroutedBin int `db:"unrouted_bins"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM bins) AS total_bins,
			(SELECT COUNT(*) FROM bins WHERE status = 'ACTIVE') AS active_bins,
			(SELECT COUNT(*) FROM routes) AS routes,
			(SELECT COUNT(*) FROM bins b WHERE NOT EXISTS (
				SELECT 1 FROM route_bins rb WHERE rb.bin_id = b.id
			)) AS unrouted_bins
	`
	if err := db.Get(&result, query); err != nil {
		logrus.Fatalf("Failed to query summary: %v", err)
	}

	// Catalog must still load cleanly after migration
	if _, err := database.LoadCatalog(db); err != nil {
		logrus.Fatalf("Catalog does not validate: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Total bins:              %d\n", result.TotalBins)
	fmt.Printf("Active bins:             %d\n", result.ActiveBins)
	fmt.Printf("Routes:                  %d\n", result.Routes)
	fmt.Printf("Bins without a route:    %d (never scanned on a route)\n", result.UnroutedBin)
	fmt.Println("============================================================")
}
