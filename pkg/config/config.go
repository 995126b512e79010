package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Audit    AuditConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	// Isolation is the SQL isolation level used for timetable transactions:
	// "serializable", "repeatable_read" or "read_committed".
	Isolation string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig governs cached consistency audits and the periodic sweep.
type AuditConfig struct {
	CacheEnabled  bool
	CacheTTL      time.Duration
	SweepEnabled  bool
	SweepSchedule string
	Workers       int
	RatePerSecond float64
	MaxRetries    int
}

// ExportsConfig toggles violation report downloads and where sweep reports
// are written.
type ExportsConfig struct {
	Enabled   bool
	Dir       string
	Retention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		Path:         v.GetString("DB_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		Isolation:    strings.ToLower(v.GetString("DB_ISOLATION")),
	}
	if cfg.Database.Driver == "sqlite3" {
		cfg.Database.Driver = DriverSQLite
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	workers := v.GetInt("AUDIT_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Audit = AuditConfig{
		CacheEnabled:  v.GetBool("ENABLE_AUDIT_CACHE"),
		CacheTTL:      parseDuration(v.GetString("AUDIT_CACHE_TTL"), 10*time.Minute),
		SweepEnabled:  v.GetBool("ENABLE_AUDIT_SWEEP"),
		SweepSchedule: v.GetString("AUDIT_SWEEP_SCHEDULE"),
		Workers:       workers,
		RatePerSecond: v.GetFloat64("AUDIT_RATE_PER_SEC"),
		MaxRetries:    v.GetInt("AUDIT_MAX_RETRIES"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:   v.GetBool("ENABLE_EXPORTS"),
		Dir:       v.GetString("EXPORTS_DIR"),
		Retention: parseDuration(v.GetString("EXPORTS_RETENTION"), 7*24*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "conference_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_PATH", "./data/timetable.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_ISOLATION", "serializable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_AUDIT_CACHE", false)
	v.SetDefault("AUDIT_CACHE_TTL", "10m")
	v.SetDefault("ENABLE_AUDIT_SWEEP", false)
	v.SetDefault("AUDIT_SWEEP_SCHEDULE", "0 3 * * *")
	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_RATE_PER_SEC", 5.0)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_RETENTION", "168h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
