// Package config loads application settings from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EVENTS_POSTGRES_HOST overrides postgres.host.
const EnvPrefix = "EVENTS"

// Store drivers accepted in store.driver.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// AppConfig is the whole application configuration.
type AppConfig struct {
	API      *APIConfig      `mapstructure:"api"`
	Auth     *AuthConfig     `mapstructure:"auth"`
	Store    *StoreConfig    `mapstructure:"store"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
	Mongo    *MongoConfig    `mapstructure:"mongo"`
	Booking  *BookingConfig  `mapstructure:"booking"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	// PublicBaseURL is where the browser client is served; ticket QR codes
	// point at <PublicBaseURL>/verify/<ticketId>.
	PublicBaseURL      string        `mapstructure:"public_base_url"`
	AllowedCORSOrigins []string      `mapstructure:"allowed_cors_origins"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	// AdminEmail, when set, makes the account registered with this email an admin.
	AdminEmail string `mapstructure:"admin_email"`
}

// StoreConfig selects the storage driver.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// PostgresConfig holds the connection and pool settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// DSN builds a libpq-compatible connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MongoConfig points at a replica set; bookings need transactions.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// BookingConfig holds booking limits.
type BookingConfig struct {
	MaxPerBooking int `mapstructure:"max_per_booking"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", "5000")
	v.SetDefault("api.environment", "development")
	v.SetDefault("api.public_base_url", "http://localhost:5173")
	v.SetDefault("api.allowed_cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 15*time.Second)
	v.SetDefault("api.idle_timeout", 60*time.Second)

	v.SetDefault("auth.jwt_signing_key", "")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.admin_email", "")

	v.SetDefault("store.driver", StorePostgres)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "eventmanager")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 20)
	v.SetDefault("postgres.min_conns", 2)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "eventmanager")

	v.SetDefault("booking.max_per_booking", 5)
}

// Load reads the YAML file at path (a missing file is not an error) and
// applies EVENTS_* environment overrides on top.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("v.ReadInConfig -> %w", err)
		}
	}

	var conf AppConfig
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("v.Unmarshal -> %w", err)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

func (c *AppConfig) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth.jwt_signing_key is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Booking.MaxPerBooking < 1 {
		return errors.New("booking.max_per_booking must be at least 1")
	}
	c.API.PublicBaseURL = strings.TrimRight(c.API.PublicBaseURL, "/")
	return nil
}
