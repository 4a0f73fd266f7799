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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Cache          CacheConfig
	Registration   RegistrationConfig
	Reconciliation ReconciliationConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs redis caching of call lookups.
type CacheConfig struct {
	Enabled bool
	CallTTL time.Duration
}

// RegistrationConfig tunes area selection and payment orders.
type RegistrationConfig struct {
	IndividualOrderTTL   time.Duration
	GroupOrderTTL        time.Duration
	EligibilityTablePath string
	DefaultCallID        string
}

// ReconciliationConfig controls the background reconciliation worker.
type ReconciliationConfig struct {
	OnStartup bool
	Workers   int
	Retries   int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		CallTTL: parseDuration(v.GetString("CALL_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Registration = RegistrationConfig{
		IndividualOrderTTL:   parseDuration(v.GetString("PAYMENT_ORDER_INDIVIDUAL_TTL"), 7*24*time.Hour),
		GroupOrderTTL:        parseDuration(v.GetString("PAYMENT_ORDER_GROUP_TTL"), 48*time.Hour),
		EligibilityTablePath: v.GetString("ELIGIBILITY_TABLE_PATH"),
		DefaultCallID:        v.GetString("DEFAULT_CALL_ID"),
	}

	workers := v.GetInt("RECONCILE_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Reconciliation = ReconciliationConfig{
		OnStartup: v.GetBool("RECONCILE_ON_STARTUP"),
		Workers:   workers,
		Retries:   v.GetInt("RECONCILE_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "olympiad_registration")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MIGRATIONS_DIR", "migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "olympiad-registration-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CALL_CACHE_TTL", "5m")

	v.SetDefault("PAYMENT_ORDER_INDIVIDUAL_TTL", "168h")
	v.SetDefault("PAYMENT_ORDER_GROUP_TTL", "48h")
	v.SetDefault("ELIGIBILITY_TABLE_PATH", "")
	v.SetDefault("DEFAULT_CALL_ID", "")

	v.SetDefault("RECONCILE_ON_STARTUP", false)
	v.SetDefault("RECONCILE_WORKERS", 1)
	v.SetDefault("RECONCILE_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
