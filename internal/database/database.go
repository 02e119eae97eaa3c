package database

import (
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Connect opens and pings the catalog database
func Connect(dbURL string) (*sqlx.DB, error) {
	logrus.WithFields(logrus.Fields{
		"url_length": len(dbURL),
		"host":       dbHost(dbURL),
	}).Info("🔌 Connecting to database")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logrus.WithField("error", err.Error()).Error("❌ Database connection failed at sqlx.Connect()")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		logrus.WithField("error", err.Error()).Error("❌ Database connection failed at Ping()")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("✅ Database connection successful")
	return db, nil
}

// dbHost is the host part of a postgres URL, the only piece safe to log.
// Key/value DSNs are not parsed.
func dbHost(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// Migrate creates the catalog tables. A bin belongs to at most one route,
// enforced by the UNIQUE bin_id in route_bins.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bins (
			id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			address TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE'
				CHECK(status IN ('ACTIVE', 'DAMAGED', 'MAINTENANCE', 'LOST', 'COLLECTED')),
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS route_bins (
			route_id TEXT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
			bin_id TEXT NOT NULL UNIQUE REFERENCES bins(id) ON DELETE CASCADE,
			sequence_order INT NOT NULL,
			PRIMARY KEY (route_id, sequence_order)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_route_bins_route_id ON route_bins(route_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logrus.Info("✓ Database migrations completed")
	return nil
}
