// Package config loads the service configuration once, at startup.
//
// Everything the process needs from the environment (secrets, expiries,
// storage endpoints) is read here into a Config value that main passes down.
// No other package calls os.Getenv.
//
// SOURCES:
//   - CONFIG_PATH set: the YAML file is read, then env vars override it
//   - otherwise: env vars only, with the env-default values below
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	HTTPServer `yaml:"http_server"`
	Log        `yaml:"log"`
	Store      `yaml:"store"`
	Token      `yaml:"token"`
	S3         `yaml:"s3"`
	Uploads    `yaml:"uploads"`
}

type HTTPServer struct {
	Port         int           `yaml:"port" env:"PORT" env-default:"8000"`
	CORSOrigin   string        `yaml:"cors_origin" env:"CORS_ORIGIN" env-default:"http://localhost:3000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	// SecureCookies marks the token cookies Secure. Only turn it off for
	// plain-HTTP local development.
	SecureCookies bool `yaml:"secure_cookies" env:"COOKIE_SECURE" env-default:"true"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"` // text | json
}

// Store selects and configures the credential store.
type Store struct {
	Driver        string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"` // sqlite | mongo
	SQLitePath    string `yaml:"sqlite_path" env:"DB_PATH" env-default:"data/videotube.db"`
	MongoURI      string `yaml:"mongo_uri" env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGODB_DATABASE" env-default:"videotube"`
}

type Token struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	AccessExpiry  time.Duration `yaml:"access_expiry" env:"ACCESS_TOKEN_EXPIRY" env-default:"24h"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	RefreshExpiry time.Duration `yaml:"refresh_expiry" env:"REFRESH_TOKEN_EXPIRY" env-default:"240h"`
	Issuer        string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"videotube"`
	BcryptCost    int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// S3 points at any S3-compatible object store (AWS, MinIO, R2).
type S3 struct {
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"videotube-media"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	PublicBaseURL   string `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
	KeyPrefix       string `yaml:"key_prefix" env:"S3_KEY_PREFIX" env-default:"uploads"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE" env-default:"true"`
}

type Uploads struct {
	TempDir      string `yaml:"temp_dir" env:"UPLOAD_TEMP_DIR" env-default:"public/temp"`
	MaxMemoryMiB int64  `yaml:"max_memory_mib" env:"UPLOAD_MAX_MEMORY_MIB" env-default:"10"`
}

// Load reads the configuration from CONFIG_PATH (if set) and the environment.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main: it panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "sqlite", "mongo":
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q (want sqlite or mongo)", c.Store.Driver))
	}
	if c.Token.AccessSecret == c.Token.RefreshSecret {
		errs = append(errs, errors.New("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.Token.AccessExpiry <= 0 || c.Token.RefreshExpiry <= 0 {
		errs = append(errs, errors.New("config: token expiries must be positive"))
	}
	if c.HTTPServer.Port <= 0 || c.HTTPServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: invalid PORT %d", c.HTTPServer.Port))
	}
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("config: S3_BUCKET is required"))
	}

	return errors.Join(errs...)
}
