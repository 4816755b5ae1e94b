package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/bindflow/runledger/internal/domain"
	pg "github.com/bindflow/runledger/internal/platform/postgres"
	"github.com/bindflow/runledger/internal/repo"
)

type ProvenanceStore struct {
	db DB
}

func NewProvenanceStore(db DB) *ProvenanceStore {
	if db == nil {
		return nil
	}
	return &ProvenanceStore{db: db}
}

func linkTable(direction domain.Direction) (string, error) {
	switch direction {
	case domain.DirectionInput:
		return "run_inputs", nil
	case domain.DirectionOutput:
		return "run_outputs", nil
	default:
		return "", domain.NewValidationError("direction", "must be input or output")
	}
}

// AttachLink is idempotent on (run, object) per direction and reports whether
// a row was created.
func (s *ProvenanceStore) AttachLink(ctx context.Context, link domain.ProvenanceLink) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("provenance store not initialized")
	}
	if err := link.Validate(); err != nil {
		return false, err
	}
	table, err := linkTable(link.Direction)
	if err != nil {
		return false, err
	}
	metadataJSON, err := encodeMetadata(link.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO `+table+` (run_id, storage_object_id, type_tag, label, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (run_id, storage_object_id) DO NOTHING`,
		strings.TrimSpace(link.RunID),
		strings.TrimSpace(link.ObjectID),
		strings.TrimSpace(link.TypeTag),
		nullIfEmpty(link.Label),
		metadataJSON,
		normalizeTime(link.CreatedAt),
	)
	if err != nil {
		if pg.IsForeignKeyViolation(err) {
			return false, repo.ErrNotFound
		}
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// buildProvenancePageQuery orders by object identity in byte order so pages
// line up with domain.ObjectIdentity.Less.
func buildProvenancePageQuery(page repo.ProvenancePage) (sqrl.SelectBuilder, error) {
	table, err := linkTable(page.Direction)
	if err != nil {
		return sqrl.SelectBuilder{}, err
	}
	builder := psql.Select(
		"l.run_id", "l.type_tag", "l.label", "l.metadata", "l.created_at",
		"o.id", "o.bucket", "o.object_key", "o.version_id", "o.size_bytes", "o.checksum", "o.content_type", "o.created_at",
	).
		From(table+" l").
		Join("storage_objects o ON o.id = l.storage_object_id").
		Where(sqrl.Eq{"l.run_id": strings.TrimSpace(page.RunID)}).
		OrderBy(`o.bucket COLLATE "C"`, `o.object_key COLLATE "C"`, `o.version_id COLLATE "C"`)
	if page.After != nil {
		after := page.After.Normalize()
		builder = builder.Where(
			sqrl.Expr(`(o.bucket COLLATE "C", o.object_key COLLATE "C", o.version_id COLLATE "C") > (?, ?, ?)`,
				after.Bucket, after.Key, after.Version),
		)
	}
	if page.Limit > 0 {
		builder = builder.Limit(uint64(page.Limit))
	}
	return builder, nil
}

func (s *ProvenanceStore) ListProvenancePage(ctx context.Context, page repo.ProvenancePage) ([]domain.ProvenanceEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("provenance store not initialized")
	}
	builder, err := buildProvenancePageQuery(page)
	if err != nil {
		return nil, err
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build provenance query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ProvenanceEntry, 0)
	for rows.Next() {
		var (
			link         domain.ProvenanceLink
			label        sql.NullString
			metadataJSON []byte
		)
		object, err := scanObject(rows, &link.RunID, &link.TypeTag, &label, &metadataJSON, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		meta, err := decodeMetadata(metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		link.ObjectID = object.ID
		link.Direction = page.Direction
		link.Label = label.String
		link.Metadata = meta
		link.CreatedAt = link.CreatedAt.UTC()
		entries = append(entries, domain.ProvenanceEntry{Link: link, Object: object})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	return entries, nil
}
