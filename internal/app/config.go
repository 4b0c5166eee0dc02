package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/catalog-admin/internal/storage/objectstore"
)

const defaultAddr = "0.0.0.0:8080"

// Config is loaded from CATALOG_-prefixed environment variables, flags and
// YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     objectstore.Config
	Drafts      DraftsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DraftsConfig controls product draft sessions.
type DraftsConfig struct {
	IdleTTL        time.Duration `default:"30m" usage:"Discard drafts idle for this long" flag:"draft-idle-ttl"`
	PreviewMaxEdge int           `default:"256" usage:"Longest edge of image previews in pixels" flag:"preview-max-edge"`
	// MaxUploadMemory caps the multipart form held in memory per request.
	MaxUploadMemory int64 `default:"33554432" usage:"Multipart memory limit in bytes" flag:"max-upload-memory"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"20" usage:"Sustained requests per second per client" flag:"rate-limit-rps"`
	Burst int     `default:"40" usage:"Request burst per client" flag:"rate-limit-burst"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads the configuration and applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.Wrap(err, "storage")
	}
	if c.Drafts.PreviewMaxEdge <= 0 {
		return errors.Errorf("preview max edge must be positive, got %d", c.Drafts.PreviewMaxEdge)
	}
	return nil
}

// applyPlatformDefaults honours DATABASE_URL and PORT as set by hosting
// platforms such as Railway or Render.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
