package config

import (
	"fmt"
	"strings"
	"time"

	"fieldcollect-backend/internal/services/location"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// GPS source kinds
const (
	GPSSourceWebSocket = "websocket"
	GPSSourceMQTT      = "mqtt"
)

// Config holds all configuration for the server
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string // Empty uses the built-in catalog

	Redis    RedisConfig
	Firebase FirebaseConfig
	GPS      GPSConfig
	Location location.Config
	Sensor   SensorConfig
}

// RedisConfig holds the record stream export settings
type RedisConfig struct {
	Addr     string // Empty disables export
	Password string
	DB       int
	Stream   string
}

// FirebaseConfig holds push notification credentials
type FirebaseConfig struct {
	CredentialsBase64 string
	CredentialsFile   string
}

// Enabled reports whether any credentials are configured
func (f FirebaseConfig) Enabled() bool {
	return f.CredentialsBase64 != "" || f.CredentialsFile != ""
}

// GPSConfig selects where operator positions come from
type GPSConfig struct {
	Source          string
	MQTTBroker      string
	MQTTTopicPrefix string
}

// SensorConfig tunes the simulated bin sensor
type SensorConfig struct {
	FailureProbability float64
	Seed               int64 // Zero seeds from the clock
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("⚠️  .env file not found, using environment variables from system")
	} else {
		logrus.Info("✅ .env file loaded successfully")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	// ── Server ──────────────────────────────────────────
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")

	// ── Record stream ───────────────────────────────────
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RECORD_STREAM", "collection:records")

	// ── Push notifications ──────────────────────────────
	v.SetDefault("FIREBASE_CREDENTIALS_BASE64", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")

	// ── GPS ─────────────────────────────────────────────
	v.SetDefault("GPS_SOURCE", GPSSourceWebSocket)
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_TOPIC_PREFIX", "fieldcollect")

	// ── Location tracking ───────────────────────────────
	defaults := location.DefaultConfig()
	v.SetDefault("LOCATION_TIMEOUT", defaults.Timeout)
	v.SetDefault("LOCATION_MAX_AGE", defaults.MaxAge)
	v.SetDefault("LOCATION_MAX_ATTEMPTS", defaults.MaxAttempts)
	v.SetDefault("LOCATION_RETRY_DELAY", defaults.RetryDelay)
	v.SetDefault("LOCATION_ACCURACY_THRESHOLD_M", defaults.AccuracyThreshold)
	v.SetDefault("LOCATION_UPDATE_INTERVAL", defaults.UpdateInterval)

	// ── Sensor simulation ───────────────────────────────
	v.SetDefault("SENSOR_FAILURE_PROBABILITY", 0.1)
	v.SetDefault("SENSOR_SEED", 0)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Stream:   v.GetString("RECORD_STREAM"),
		},
		Firebase: FirebaseConfig{
			CredentialsBase64: v.GetString("FIREBASE_CREDENTIALS_BASE64"),
			CredentialsFile:   v.GetString("FIREBASE_CREDENTIALS_FILE"),
		},
		GPS: GPSConfig{
			Source:          strings.ToLower(v.GetString("GPS_SOURCE")),
			MQTTBroker:      v.GetString("MQTT_BROKER"),
			MQTTTopicPrefix: v.GetString("MQTT_TOPIC_PREFIX"),
		},
		Location: location.Config{
			Timeout:           v.GetDuration("LOCATION_TIMEOUT"),
			MaxAge:            v.GetDuration("LOCATION_MAX_AGE"),
			MaxAttempts:       v.GetInt("LOCATION_MAX_ATTEMPTS"),
			RetryDelay:        v.GetDuration("LOCATION_RETRY_DELAY"),
			AccuracyThreshold: v.GetFloat64("LOCATION_ACCURACY_THRESHOLD_M"),
			UpdateInterval:    v.GetDuration("LOCATION_UPDATE_INTERVAL"),
		},
		Sensor: SensorConfig{
			FailureProbability: v.GetFloat64("SENSOR_FAILURE_PROBABILITY"),
			Seed:               v.GetInt64("SENSOR_SEED"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.GPS.Source {
	case GPSSourceWebSocket:
	case GPSSourceMQTT:
		if c.GPS.MQTTBroker == "" {
			return fmt.Errorf("GPS_SOURCE=mqtt requires MQTT_BROKER")
		}
	default:
		return fmt.Errorf("unknown GPS_SOURCE %q", c.GPS.Source)
	}

	if c.Sensor.FailureProbability < 0 || c.Sensor.FailureProbability > 1 {
		return fmt.Errorf("SENSOR_FAILURE_PROBABILITY must be within [0, 1], got %v", c.Sensor.FailureProbability)
	}
	if c.Location.MaxAttempts < 1 {
		return fmt.Errorf("LOCATION_MAX_ATTEMPTS must be at least 1, got %d", c.Location.MaxAttempts)
	}
	if c.Location.Timeout <= 0 || c.Location.UpdateInterval <= 0 {
		return fmt.Errorf("LOCATION_TIMEOUT and LOCATION_UPDATE_INTERVAL must be positive")
	}
	if c.Location.RetryDelay < 0 || c.Location.MaxAge < 0 {
		return fmt.Errorf("LOCATION_RETRY_DELAY and LOCATION_MAX_AGE must not be negative")
	}
	return nil
}

// ParseLogLevel returns the logrus level for LogLevel, defaulting to info
func (c *Config) ParseLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SensorSeed returns the configured seed or a clock-derived one
func (c *Config) SensorSeed() int64 {
	if c.Sensor.Seed != 0 {
		return c.Sensor.Seed
	}
	return time.Now().UnixNano()
}
