package app

import (
	"errors"
	"fmt"
	"time"
)

// DefaultDispatchTimeout bounds one hand-over when no timeout is configured.
const DefaultDispatchTimeout = 60 * time.Second

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath string // hcl file or directory
	HostName     string // this host, as named in the manifest

	ListenPort      int
	JaegerAgent     string // host:port, empty disables tracing
	DispatchTimeout time.Duration

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.ListenPort < 0 || cfg.ListenPort > 65535 {
		return nil, fmt.Errorf("ListenPort %d is out of range", cfg.ListenPort)
	}
	if cfg.DispatchTimeout < 0 {
		return nil, errors.New("DispatchTimeout cannot be negative")
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}

	return &cfg, nil
}
