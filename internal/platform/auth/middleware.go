package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
)

// ResolveFunc maps an authenticated identity onto an internal user id,
// creating the user on first sight.
type ResolveFunc func(ctx context.Context, identity Identity) (string, error)

type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Resolve       ResolveFunc
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, ErrUnauthenticated) {
				reason = "unauthorized"
			}
			m.deny(w, r, http.StatusUnauthorized, reason, err)
			return
		}
		if strings.TrimSpace(identity.Subject) == "" {
			m.deny(w, r, http.StatusUnauthorized, "invalid_token", errors.New("token has no subject"))
			return
		}

		ctx := ContextWithIdentity(r.Context(), identity)
		if m.Resolve != nil {
			userID, err := m.Resolve(ctx, identity)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrConflict):
					m.deny(w, r, http.StatusConflict, "identity_conflict", err, "subject", identity.Subject)
				case errors.Is(err, domain.ErrValidation):
					m.deny(w, r, http.StatusUnauthorized, "incomplete_identity", err, "subject", identity.Subject)
				default:
					m.deny(w, r, http.StatusInternalServerError, "identity_unavailable", err, "subject", identity.Subject)
				}
				return
			}
			ctx = ContextWithUserID(ctx, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason string, err error, extra ...any) {
	m.logDeny(r, status, reason, err, extra...)
	writeJSON(w, status, map[string]any{
		"error":      reason,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (m Middleware) logDeny(r *http.Request, status int, reason string, err error, extra ...any) {
	if m.Logger == nil {
		return
	}
	fields := []any{
		"reason", reason,
		"status", status,
		"request_id", r.Header.Get("X-Request-Id"),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	}
	fields = append(fields, extra...)
	if status >= 500 {
		m.Logger.Error("auth deny", fields...)
		return
	}
	m.Logger.Warn("auth deny", fields...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}
