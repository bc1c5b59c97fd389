package monitoring

import (
	"fmt"
	"strings"

	appconfig "github.com/compozy/docqa/pkg/config"
)

// Config holds configuration for the monitoring service
type Config struct {
	Enabled bool
	Path    string
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Path:    "/metrics",
	}
}

// FromAppConfig converts the monitoring section of the application config.
func FromAppConfig(cfg appconfig.MonitoringConfig) *Config {
	out := DefaultConfig()
	out.Enabled = cfg.Enabled
	if cfg.Path != "" {
		out.Path = cfg.Path
	}
	return out
}

// Validate validates the monitoring configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("monitoring path cannot be empty")
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("monitoring path must start with '/': got %s", c.Path)
	}
	if strings.HasPrefix(c.Path, "/api/") || c.Path == "/ask" || c.Path == "/health" {
		return fmt.Errorf("monitoring path %s conflicts with an API route", c.Path)
	}
	if strings.ContainsRune(c.Path, '?') {
		return fmt.Errorf("monitoring path cannot contain query parameters")
	}
	return nil
}
