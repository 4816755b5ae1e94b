package postgres

import (
	"net/url"
	"strings"
)

// withRuntimeParam adds key=value to a postgres:// URL or a key/value DSN.
func withRuntimeParam(dsn, key, value string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		if q.Get(key) == "" {
			q.Set(key, value)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	if strings.Contains(dsn, key+"=") {
		return dsn, nil
	}
	return strings.TrimSpace(dsn) + " " + key + "=" + value, nil
}
