package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ReservedDatabase is the administrative database every PostgreSQL cluster ships with.
const ReservedDatabase = "postgres"

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes the single container and database managed by dockerdb.
// It is passed by value and never mutated after Load.
type Config struct {
	Database      string            `yaml:"database" env:"PG_DATABASE"`
	Host          string            `yaml:"host" env:"PG_HOST"`
	Image         string            `yaml:"image" env:"POSTGRES_IMAGE_NAME"`
	Password      string            `yaml:"password" env:"PG_PASSWORD"`
	Port          string            `yaml:"port" env:"PG_PORT"`
	User          string            `yaml:"user" env:"PG_USER"`
	ContainerName string            `yaml:"container_name" env:"UNIQUE_CONTAINER_NAME"`
	Hostname      string            `yaml:"hostname"`
	AutoRemove    bool              `yaml:"auto_remove" env:"DOCKERDB_AUTO_REMOVE"`
	Labels        map[string]string `yaml:"labels"`
	StopTimeout   time.Duration     `yaml:"stop_timeout" env:"DOCKERDB_STOP_TIMEOUT"`
	Readiness     Readiness         `yaml:"readiness"`
	Metrics       Metrics           `yaml:"metrics"`
	Bus           Bus               `yaml:"bus"`
}

type Readiness struct {
	Interval    time.Duration `yaml:"interval" env:"DOCKERDB_READY_INTERVAL"`
	MaxAttempts int           `yaml:"max_attempts" env:"DOCKERDB_READY_ATTEMPTS"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"DOCKERDB_PUSHGATEWAY_URL"`
}

type Bus struct {
	URL   string `yaml:"url" env:"NATS_URL"`
	Token string `yaml:"token" env:"NATS_TOKEN"`
}

// Load resolves the configuration once: YAML file, then .env file, then the
// process environment, then defaults. Either path may be empty.
func Load(path, envFile string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	applyDefaults(&cfg)

	// PG_DATABASE set to "" is kept so EnsureDatabase rejects it instead of
	// silently using the default name.
	if v, ok := os.LookupEnv("PG_DATABASE"); ok && v == "" {
		cfg.Database = ""
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = "piccolo_database"
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Image == "" {
		cfg.Image = "postgres:latest"
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if cfg.ContainerName == "" {
		cfg.ContainerName = "piccolo_postgres_7677f8bd"
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "postgres"
	}
	if cfg.Labels == nil {
		cfg.Labels = map[string]string{"f2c62b9d": "2eb8705fda65"}
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.Readiness.Interval == 0 {
		cfg.Readiness.Interval = time.Second
	}
	if cfg.Readiness.MaxAttempts == 0 {
		cfg.Readiness.MaxAttempts = 60
	}
}

// Overrides replaces selected fields of a resolved Config. Zero values are ignored.
type Overrides struct {
	Database      string
	Password      string
	Port          string
	ContainerName string
	Image         string
	AutoRemove    *bool
	Readiness     Readiness
}

// With returns a copy of c with the non-zero fields of o applied.
func (c Config) With(o Overrides) Config {
	out := c
	out.Labels = maps.Clone(c.Labels)
	if o.Database != "" {
		out.Database = o.Database
	}
	if o.Password != "" {
		out.Password = o.Password
	}
	if o.Port != "" {
		out.Port = o.Port
	}
	if o.ContainerName != "" {
		out.ContainerName = o.ContainerName
	}
	if o.Image != "" {
		out.Image = o.Image
	}
	if o.AutoRemove != nil {
		out.AutoRemove = *o.AutoRemove
	}
	if o.Readiness.Interval > 0 {
		out.Readiness.Interval = o.Readiness.Interval
	}
	if o.Readiness.MaxAttempts > 0 {
		out.Readiness.MaxAttempts = o.Readiness.MaxAttempts
	}
	return out
}

// ConnString returns a PostgreSQL URL for the administrative database.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + ReservedDatabase,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
