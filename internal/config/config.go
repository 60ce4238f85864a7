package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Storage   StorageConfig
	CORS      CORSConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address string
}

type AuthConfig struct {
	Provider                string // "jwt" or "firebase"
	JWTSecret               string
	FirebaseProjectID       string
	FirebaseCredentialsJSON string
}

type StorageConfig struct {
	Driver        string // "file", "mongo" or "postgres"
	DataDir       string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type WebSocketConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type AppConfig struct {
	Timezone         *time.Location
	MaxReportSeconds int
	ExpiryInterval   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// env maps config keys to the environment variables that override them.
var env = map[string]string{
	"server.address":            "SERVER_ADDRESS",
	"auth.provider":             "AUTH_PROVIDER",
	"jwt.secret":                "JWT_SECRET",
	"firebase.project_id":       "FIREBASE_PROJECT_ID",
	"firebase.credentials_json": "FIREBASE_CREDENTIALS_JSON",
	"storage.driver":            "STORAGE_DRIVER",
	"storage.data_dir":          "DATA_DIR",
	"mongo.uri":                 "MONGO_URI",
	"mongo.database":            "MONGO_DATABASE",
	"database.url":              "DATABASE_URL",
	"cors.allowed_origins":      "CORS_ALLOWED_ORIGINS",
	"websocket.allowed_origins": "WEBSOCKET_ALLOWED_ORIGINS",
	"ratelimit.rps":             "RATELIMIT_RPS",
	"ratelimit.burst":           "RATELIMIT_BURST",
	"app.timezone":              "APP_TIMEZONE",
	"usage.max_report_seconds":  "USAGE_MAX_REPORT_SECONDS",
	"sessions.expiry_interval":  "SESSIONS_EXPIRY_INTERVAL",
	"log.level":                 "LOG_LEVEL",
	"log.format":                "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("auth.provider", "jwt")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("mongo.database", "focusguard")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("websocket.allowed_origins", "")
	v.SetDefault("ratelimit.rps", 10)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("usage.max_report_seconds", 300)
	v.SetDefault("sessions.expiry_interval", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env (if present), then an optional config file, then the
// environment. configFile may be empty.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		v.BindEnv(key, name)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	loc, err := time.LoadLocation(v.GetString("app.timezone"))
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: v.GetString("server.address"),
		},
		Auth: AuthConfig{
			Provider:                strings.ToLower(v.GetString("auth.provider")),
			JWTSecret:               v.GetString("jwt.secret"),
			FirebaseProjectID:       v.GetString("firebase.project_id"),
			FirebaseCredentialsJSON: v.GetString("firebase.credentials_json"),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage.driver")),
			DataDir:       v.GetString("storage.data_dir"),
			MongoURI:      v.GetString("mongo.uri"),
			MongoDatabase: v.GetString("mongo.database"),
			DatabaseURL:   v.GetString("database.url"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: splitList(v.GetString("websocket.allowed_origins")),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("ratelimit.rps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
		App: AppConfig{
			Timezone:         loc,
			MaxReportSeconds: v.GetInt("usage.max_report_seconds"),
			ExpiryInterval:   v.GetDuration("sessions.expiry_interval"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("jwt.secret is required when auth.provider is jwt"))
		}
	case "firebase":
		if c.Auth.FirebaseProjectID == "" {
			errs = append(errs, errors.New("firebase.project_id is required when auth.provider is firebase"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.provider %q is not one of jwt, firebase", c.Auth.Provider))
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the file driver"))
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("mongo.uri is required for the mongo driver"))
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of file, mongo, postgres", c.Storage.Driver))
	}

	if c.App.MaxReportSeconds < 1 {
		errs = append(errs, errors.New("usage.max_report_seconds must be positive"))
	}
	if c.App.ExpiryInterval <= 0 {
		errs = append(errs, errors.New("sessions.expiry_interval must be positive"))
	}
	if c.RateLimit.RPS <= 0 {
		errs = append(errs, errors.New("ratelimit.rps must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
