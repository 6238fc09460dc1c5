package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Auth       Auth       `yaml:"auth"`
	Redis      Redis      `yaml:"redis"`
	Mongo      Mongo      `yaml:"mongo"`
	Orders     Orders     `yaml:"orders"`
	Invoice    Invoice    `yaml:"invoice"`
	Uploads    Uploads    `yaml:"uploads"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Pagination Pagination `yaml:"pagination"`
	Log        Log        `yaml:"log"`
}

type Server struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Database struct {
	Driver string `yaml:"driver"` // sqlite, postgres or mysql
	DSN    string `yaml:"dsn"`
	// SeedCatalog loads the starter catalog into an empty products table.
	SeedCatalog bool `yaml:"seed_catalog"`
}

type Auth struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type Mongo struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Orders struct {
	// Transitions maps a status name to the statuses an admin may move it to.
	// Statuses missing from the map are terminal.
	Transitions     map[string][]string `yaml:"transitions"`
	RestockOnCancel bool                `yaml:"restock_on_cancel"`
}

type Invoice struct {
	Secret string `yaml:"secret"`
}

type Uploads struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type Pagination struct {
	PageSize      int `yaml:"page_size"`
	AdminPageSize int `yaml:"admin_page_size"`
	MaxPageSize   int `yaml:"max_page_size"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// DefaultTransitions is the order status table used when the config file
// does not provide one.
func DefaultTransitions() map[string][]string {
	return map[string][]string{
		"Waiting":      {"InProcessing", "Withdrawn", "Rejected"},
		"InProcessing": {"Completed", "Withdrawn", "Rejected"},
	}
}

func Default() *Config {
	return &Config{
		Server: Server{
			Port:            ":8080",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     7 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{Driver: "sqlite", DSN: "file:petpet.db"},
		Auth: Auth{
			JWTSecret:  "",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			AdminEmail: "admin@petpet.com",
		},
		Redis:      Redis{Channel: "petpet-events"},
		Mongo:      Mongo{Database: "petpet", Collection: "audit"},
		Orders:     Orders{RestockOnCancel: true},
		Uploads:    Uploads{Dir: "static/uploads", URLPrefix: "/static/uploads", MaxBytes: 10 << 20},
		RateLimit:  RateLimit{PerSecond: 10, Burst: 20},
		Pagination: Pagination{PageSize: 10, AdminPageSize: 20, MaxPageSize: 100},
		Log:        Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file if present, and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()
	applyEnv(cfg)

	if cfg.Orders.Transitions == nil {
		cfg.Orders.Transitions = DefaultTransitions()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if v[0] != ':' {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.DSN, "DB_DSN")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.AdminEmail, "ADMIN_EMAIL")
	setString(&cfg.Auth.AdminPassword, "ADMIN_PASSWORD")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Mongo.URI, "MONGO_URI")
	setString(&cfg.Invoice.Secret, "INVOICE_SECRET")
	setString(&cfg.Uploads.Dir, "UPLOAD_DIR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	if v := os.Getenv("SEED_CATALOG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.SeedCatalog = b
		}
	}
	if v := os.Getenv("RESTOCK_ON_CANCEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Orders.RestockOnCancel = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Database.Driver == "mysql" && !strings.Contains(c.Database.DSN, "parseTime=true") {
		return errors.New("mysql dsn must set parseTime=true")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required (JWT_SECRET)")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Pagination.PageSize < 1 || c.Pagination.AdminPageSize < 1 {
		return errors.New("page sizes must be positive")
	}
	if c.Invoice.Secret == "" {
		c.Invoice.Secret = c.Auth.JWTSecret
	}
	return nil
}
