package objectstore

import (
	"errors"
	"strings"

	"github.com/bindflow/runledger/internal/platform/env"
)

type Config struct {
	Enabled       bool
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	ResultsBucket string
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("OBJECTSTORE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := env.Bool("OBJECTSTORE_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:       enabled,
		Endpoint:      strings.TrimSpace(env.String("OBJECTSTORE_ENDPOINT", "localhost:9000")),
		AccessKey:     env.String("OBJECTSTORE_ACCESS_KEY", ""),
		SecretKey:     env.String("OBJECTSTORE_SECRET_KEY", ""),
		Region:        env.String("OBJECTSTORE_REGION", "us-east-1"),
		UseSSL:        useSSL,
		ResultsBucket: strings.TrimSpace(env.String("OBJECTSTORE_RESULTS_BUCKET", "results")),
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("OBJECTSTORE_ENDPOINT is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("OBJECTSTORE_ENDPOINT must be host:port without scheme")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("OBJECTSTORE_ACCESS_KEY and OBJECTSTORE_SECRET_KEY are required")
	}
	if strings.TrimSpace(c.ResultsBucket) == "" {
		return errors.New("OBJECTSTORE_RESULTS_BUCKET is required")
	}
	return nil
}
