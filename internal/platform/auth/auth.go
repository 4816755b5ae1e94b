package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bindflow/runledger/internal/platform/env"
)

type Mode string

const (
	ModeOIDC Mode = "oidc"
	ModeDev  Mode = "dev"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	EmailClaim string
	NameClaim  string

	SessionCookieName string

	OIDCIssuerURL string
	OIDCClientID  string

	DevSubject string
	DevEmail   string
	DevName    string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeOIDC))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, dev (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:              mode,
		EmailClaim:        env.String("AUTH_EMAIL_CLAIM", "email"),
		NameClaim:         env.String("AUTH_NAME_CLAIM", "name"),
		SessionCookieName: env.String("AUTH_SESSION_COOKIE_NAME", "runledger_session"),
		OIDCIssuerURL:     env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:      env.String("OIDC_CLIENT_ID", ""),
		DevSubject:        env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:          env.String("DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevName:           env.String("DEV_AUTH_NAME", "Dev User"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(string(c.Mode)) == "" {
		return errors.New("AUTH_MODE is required")
	}
	if strings.TrimSpace(c.EmailClaim) == "" {
		return errors.New("AUTH_EMAIL_CLAIM is required")
	}
	if strings.TrimSpace(c.NameClaim) == "" {
		return errors.New("AUTH_NAME_CLAIM is required")
	}

	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("OIDC_ISSUER_URL is required when AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_CLIENT_ID is required when AUTH_MODE=oidc")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("DEV_AUTH_SUBJECT is required when AUTH_MODE=dev")
		}
		if strings.TrimSpace(c.DevEmail) == "" {
			return errors.New("DEV_AUTH_EMAIL is required when AUTH_MODE=dev")
		}
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}

	return nil
}
