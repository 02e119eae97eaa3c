package main

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"fieldcollect-backend/internal/config"
	"fieldcollect-backend/internal/database"
	"fieldcollect-backend/internal/handlers"
	"fieldcollect-backend/internal/middleware"
	"fieldcollect-backend/internal/services/catalog"
	"fieldcollect-backend/internal/services/collection"
	"fieldcollect-backend/internal/services/notify"
	"fieldcollect-backend/internal/services/session"
	"fieldcollect-backend/internal/services/stream"
	"fieldcollect-backend/internal/websocket"
	"fieldcollect-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.Info("═══════════════════════════════════════════════════════════════════")
	logrus.Info("🚀 FIELD COLLECTION BACKEND STARTING")
	logrus.Info("═══════════════════════════════════════════════════════════════════")

	cfg, err := config.Load()
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Invalid configuration")
	}
	logrus.SetLevel(cfg.ParseLogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := loadCatalog(cfg)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	logrus.Info("✅ WebSocket hub started")

	opts := session.Options{
		Location:    cfg.Location,
		NewSensor:   sensorFactory(cfg),
		Broadcaster: wsHub,
	}

	// Record export is optional
	if cfg.Redis.Addr != "" {
		publisher := stream.NewRecordPublisher(
			stream.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
			cfg.Redis.Stream,
		)
		if err := publisher.Ping(ctx); err != nil {
			logrus.WithField("error", err.Error()).Warn("⚠️  Redis unreachable (record export disabled)")
			publisher.Close()
		} else {
			opts.Exporter = publisher
			defer publisher.Close()
			logrus.WithField("stream", cfg.Redis.Stream).Info("✅ Record export to Redis stream enabled")
		}
	} else {
		logrus.Info("⚠️  REDIS_ADDR not set (record export disabled)")
	}

	// Push notifications are optional
	if cfg.Firebase.Enabled() {
		var notifier *notify.FCMNotifier
		if cfg.Firebase.CredentialsBase64 != "" {
			notifier, err = notify.NewFCMNotifierFromBase64(ctx, cfg.Firebase.CredentialsBase64)
		} else {
			notifier, err = notify.NewFCMNotifier(ctx, cfg.Firebase.CredentialsFile)
		}
		if err != nil {
			logrus.WithField("error", err.Error()).Warn("⚠️  Failed to initialize FCM (push notifications disabled)")
		} else {
			opts.Notifier = notifier
			logrus.Info("✅ Firebase Cloud Messaging initialized")
		}
	} else {
		logrus.Info("⚠️  Firebase credentials not set (push notifications disabled)")
	}

	switch cfg.GPS.Source {
	case config.GPSSourceMQTT:
		opts.NewSource = session.MQTTSourceFactory(cfg.GPS.MQTTBroker, cfg.GPS.MQTTTopicPrefix)
		logrus.WithField("broker", cfg.GPS.MQTTBroker).Info("📡 Operator positions from MQTT")
	default:
		opts.NewSource = session.PushSourceFactory
		logrus.Info("📡 Operator positions from WebSocket")
	}

	manager := session.NewManager(cat, opts)

	r := newRouter(cat, manager, wsHub)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.Info("═══════════════════════════════════════════════════════════════════")
	logrus.Info("✅ ALL INITIALIZATION COMPLETE")
	logrus.Infof("🚀 Server starting on http://localhost:%s", cfg.Port)
	logrus.Info("═══════════════════════════════════════════════════════════════════")

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"error": err.Error(),
			"port":  cfg.Port,
		}).Fatal("❌ FATAL ERROR: Server failed to start")
	}
	if err := serve(ctx, srv, ln, manager.Shutdown); err != nil {
		logrus.WithFields(logrus.Fields{
			"error": err.Error(),
			"port":  cfg.Port,
		}).Fatal("❌ FATAL ERROR: Server failed")
	}
	logrus.Info("👋 Server stopped")
}

// serve runs srv on ln until ctx ends, then ends the sessions and shuts the
// server down. It returns once in-flight requests have drained.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, endSessions func()) error {
	shutdownDone := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logrus.Info("🛑 Shutting down...")
		if endSessions != nil {
			endSessions()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownDone <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; wait for it to drain
	if err := <-shutdownDone; err != nil {
		logrus.WithField("error", err.Error()).Error("❌ Server shutdown failed")
		return err
	}
	return nil
}

// loadCatalog reads the catalog from the database when one is configured,
// otherwise uses the built-in Colombo catalog
func loadCatalog(cfg *config.Config) *catalog.Catalog {
	if cfg.DatabaseURL == "" {
		logrus.Info("⚠️  DATABASE_URL not set, using built-in catalog")
		cat, err := catalog.New(database.DefaultCatalog())
		if err != nil {
			logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Built-in catalog is invalid")
		}
		return cat
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Database connection failed")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Database migrations failed")
	}
	if err := database.SeedCatalog(db); err != nil {
		logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Catalog seeding failed")
	}

	cat, err := database.LoadCatalog(db)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("❌ FATAL ERROR: Catalog load failed")
	}
	return cat
}

// sensorFactory gives every session its own generator; *rand.Rand is not
// safe for concurrent use
func sensorFactory(cfg *config.Config) func() collection.Sensor {
	base := cfg.SensorSeed()
	var n atomic.Int64
	return func() collection.Sensor {
		rng := rand.New(rand.NewSource(base + n.Add(1)))
		return collection.NewSimulatedSensor(rng, cfg.Sensor.FailureProbability)
	}
}

func newRouter(cat *catalog.Catalog, manager *session.Manager, wsHub *websocket.Hub) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"sessions":          len(manager.List()),
			"websocket_clients": wsHub.GetClientCount(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint (operator identity via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, manager))

	r.Route("/api", func(r chi.Router) {
		// Catalog
		r.Get("/routes", handlers.GetRoutes(cat))
		r.Get("/routes/{id}", handlers.GetRoute(cat))
		r.Get("/routes/{id}/bins", handlers.GetRouteBins(cat))
		r.Get("/bins/{id}", handlers.GetBin(cat))

		// Diagnostic logging from the operator app
		r.Post("/logs/diagnostic", handlers.ReceiveDiagnosticLog())

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", handlers.ListSessions(manager))
			r.Post("/", handlers.StartSession(manager))
			r.Get("/{id}", handlers.GetSession(manager))
			r.Delete("/{id}", handlers.EndSession(manager))

			// Operator inputs
			r.Post("/{id}/scan", handlers.Scan(manager))
			r.Post("/{id}/override", handlers.Override(manager))
			r.Post("/{id}/cancel", handlers.Cancel(manager))
			r.Post("/{id}/manual-entry/request", handlers.RequestManualEntry(manager))
			r.Post("/{id}/manual-entry", handlers.SubmitManualEntry(manager))
			r.Post("/{id}/missed", handlers.MarkMissed(manager))

			// Location
			r.Post("/{id}/fix", handlers.AcquireFix(manager))
			r.Post("/{id}/tracking/start", handlers.StartTracking(manager))
			r.Post("/{id}/tracking/stop", handlers.StopTracking(manager))
			r.Post("/{id}/fcm-token", handlers.RegisterFCMToken(manager))

			// Views
			r.Get("/{id}/progress", handlers.GetProgress(manager))
			r.Get("/{id}/next-destination", handlers.GetNextDestination(manager))
			r.Get("/{id}/segments", handlers.GetSegments(manager))
			r.Get("/{id}/map", handlers.GetMapState(manager))
			r.Get("/{id}/records", handlers.GetRecords(manager))
		})
	})

	return r
}
