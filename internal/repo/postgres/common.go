package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/bindflow/runledger/internal/domain"
	pg "github.com/bindflow/runledger/internal/platform/postgres"
	"github.com/bindflow/runledger/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var psql = sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar)

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullIfEmpty(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time.UTC()
	return &out
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	out := f.Float64
	return &out
}

func encodeMetadata(meta domain.Metadata) ([]byte, error) {
	if meta == nil {
		meta = domain.Metadata{}
	}
	return json.Marshal(meta)
}

func decodeMetadata(raw []byte) (domain.Metadata, error) {
	if len(raw) == 0 {
		return domain.Metadata{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return domain.Metadata(out), nil
}

// handleNotFound treats ids that are not even valid uuids as absent rows.
func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || pg.IsInvalidText(err) {
		return repo.ErrNotFound
	}
	return err
}

// uniqueFields maps named unique constraints onto the field reported in conflicts.
var uniqueFields = map[string]string{
	"app_users_pkey":                       "id",
	"app_users_external_subject_unique":    "external_subject",
	"app_users_email_unique":               "email",
	"workflows_pkey":                       "id",
	"workflow_runs_pkey":                   "id",
	"workflow_runs_external_run_id_unique": "external_run_id",
	"workflow_runs_work_dir_unique":        "work_dir",
	"storage_objects_pkey":                 "id",
	"storage_objects_identity_unique":      "identity",
}

// conflictFromUnique converts a unique violation into a *domain.ConflictError.
// It returns nil for any other error.
func conflictFromUnique(entity string, err error, values map[string]string) error {
	if !pg.IsUniqueViolation(err) {
		return nil
	}
	field, ok := uniqueFields[pg.ConstraintName(err)]
	if !ok {
		field = "unknown"
	}
	return &domain.ConflictError{Entity: entity, Field: field, Value: values[field]}
}

func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}
