package seqera

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/platform/env"
)

type Config struct {
	APIURL      string
	AccessToken string
	WorkspaceID string
	Timeout     time.Duration
	RetryCount  int
}

// Enabled reports whether a platform endpoint is configured. Without one the
// ledger runs standalone and neither propagates nor reconciles.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIURL) != ""
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("SEQERA_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	retries, err := env.Int("SEQERA_RETRY_COUNT", 2)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		APIURL:      strings.TrimRight(strings.TrimSpace(env.String("SEQERA_API_URL", "")), "/"),
		AccessToken: strings.TrimSpace(env.String("SEQERA_ACCESS_TOKEN", "")),
		WorkspaceID: strings.TrimSpace(env.String("SEQERA_WORKSPACE_ID", "")),
		Timeout:     timeout,
		RetryCount:  retries,
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("SEQERA_API_URL must be an absolute url")
	}
	if c.AccessToken == "" {
		return errors.New("SEQERA_ACCESS_TOKEN is required")
	}
	if c.Timeout <= 0 {
		return errors.New("SEQERA_TIMEOUT must be > 0")
	}
	if c.RetryCount < 0 {
		return errors.New("SEQERA_RETRY_COUNT must be >= 0")
	}
	return nil
}
