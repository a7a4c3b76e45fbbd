package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Game      GameConfig      `mapstructure:"game"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the ownership store backend: postgres (default) or
	// firestore. Everything else always lives in postgres.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type FirestoreConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	Collection string `mapstructure:"collection"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// GameConfig tunes the claim rules. The defaults are the canonical ones;
// override them only for test realms.
type GameConfig struct {
	OwnershipHours     int     `mapstructure:"ownership_hours"`
	GraceMinutes       int     `mapstructure:"grace_minutes"`
	ClaimXP            int     `mapstructure:"claim_xp"`
	ClaimGold          int     `mapstructure:"claim_gold"`
	DebounceSeconds    int     `mapstructure:"debounce_seconds"`
	MaxMapRadiusMeters float64 `mapstructure:"max_map_radius_meters"`
	MaxSpeedMS         float64 `mapstructure:"max_speed_ms"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "turf")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "turfgrid")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.collection", "cell_ownership")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "turfgrid-contests")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("game.ownership_hours", 24)
	v.SetDefault("game.grace_minutes", 60)
	v.SetDefault("game.claim_xp", 50)
	v.SetDefault("game.claim_gold", 10)
	v.SetDefault("game.debounce_seconds", 10)
	v.SetDefault("game.max_map_radius_meters", 200)
	v.SetDefault("game.max_speed_ms", 50)

	// Config file (optional)
	v.SetConfigName("turfgrid")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TURFGRID_DATABASE_HOST → database.host
	v.SetEnvPrefix("TURFGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "firestore" {
		errs = append(errs, fmt.Sprintf("database.driver must be postgres or firestore, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "firestore" && c.Firestore.ProjectID == "" {
		errs = append(errs, "firestore.project_id is required with the firestore driver")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Game.OwnershipHours <= 0 {
		errs = append(errs, "game.ownership_hours must be positive")
	}
	if c.Game.GraceMinutes <= 0 {
		errs = append(errs, "game.grace_minutes must be positive")
	}
	if c.Game.ClaimXP < 0 || c.Game.ClaimGold < 0 {
		errs = append(errs, "game rewards must not be negative")
	}
	if c.Game.MaxMapRadiusMeters <= 0 {
		errs = append(errs, "game.max_map_radius_meters must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
