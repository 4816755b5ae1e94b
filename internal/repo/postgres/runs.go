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

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

var runColumns = []string{
	"r.id",
	"r.workflow_id",
	"r.owner_user_id",
	"r.external_run_id",
	"r.external_dataset_id",
	"r.run_name",
	"r.work_dir",
	"r.status",
	"r.requested_at",
	"r.started_at",
	"r.finished_at",
	"r.params",
	"r.labels",
	"r.error_summary",
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return errors.New("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	paramsJSON, err := encodeMetadata(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	labelsJSON, err := encodeMetadata(run.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_runs (
			id,
			workflow_id,
			owner_user_id,
			external_run_id,
			external_dataset_id,
			run_name,
			work_dir,
			status,
			requested_at,
			started_at,
			finished_at,
			params,
			labels,
			error_summary
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		strings.TrimSpace(run.ID),
		nullIfEmpty(run.WorkflowID),
		strings.TrimSpace(run.OwnerUserID),
		strings.TrimSpace(run.ExternalRunID),
		nullIfEmpty(run.ExternalDatasetID),
		nullIfEmpty(run.RunName),
		strings.TrimSpace(run.WorkDir),
		string(run.Status),
		normalizeTime(run.RequestedAt),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		paramsJSON,
		labelsJSON,
		nullIfEmpty(run.ErrorSummary),
	)
	if err != nil {
		if conflict := conflictFromUnique("run", err, map[string]string{
			"id":              run.ID,
			"external_run_id": run.ExternalRunID,
			"work_dir":        run.WorkDir,
		}); conflict != nil {
			return conflict
		}
		if pg.IsInvalidText(err) {
			return domain.NewValidationError("workflow_id", "must be a uuid")
		}
		if pg.IsForeignKeyViolation(err) {
			switch pg.ConstraintName(err) {
			case "workflow_runs_workflow_id_foreign":
				return domain.NewValidationError("workflow_id", "unknown workflow")
			default:
				return domain.NewValidationError("owner_user_id", "unknown user")
			}
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return s.getOne(ctx, sqrl.Eq{"r.id": strings.TrimSpace(id)}, false)
}

// GetRunForUpdate locks the row until the surrounding transaction ends.
func (s *RunStore) GetRunForUpdate(ctx context.Context, id string) (domain.Run, error) {
	return s.getOne(ctx, sqrl.Eq{"r.id": strings.TrimSpace(id)}, true)
}

func (s *RunStore) GetRunByExternalID(ctx context.Context, externalRunID string) (domain.Run, error) {
	return s.getOne(ctx, sqrl.Eq{"r.external_run_id": strings.TrimSpace(externalRunID)}, false)
}

func (s *RunStore) getOne(ctx context.Context, where sqrl.Eq, forUpdate bool) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, errors.New("run store not initialized")
	}
	for _, value := range where {
		if value == "" {
			return domain.Run{}, repo.ErrNotFound
		}
	}
	builder := psql.Select(runColumns...).From("workflow_runs r").Where(where)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return domain.Run{}, fmt.Errorf("build run query: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	return run, nil
}

// buildRunListQueries returns the page query and the matching count query.
func buildRunListQueries(filter repo.RunFilter) (sqrl.SelectBuilder, sqrl.SelectBuilder) {
	where := sqrl.And{}
	if owner := strings.TrimSpace(filter.OwnerUserID); owner != "" {
		where = append(where, sqrl.Eq{"r.owner_user_id": owner})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		where = append(where, sqrl.Eq{"r.status": statuses})
	}
	if filter.NonTerminalOnly {
		where = append(where, sqrl.NotEq{"r.status": []string{
			string(domain.RunStatusSucceeded),
			string(domain.RunStatusFailed),
			string(domain.RunStatusCanceled),
		}})
	}
	if filter.Unscored {
		where = append(where, sqrl.Eq{"m.primary_score": nil})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where = append(where, sqrl.Or{
			sqrl.ILike{"r.run_name": pattern},
			sqrl.ILike{"w.name": pattern},
		})
	}

	from := "workflow_runs r LEFT JOIN workflows w ON w.id = r.workflow_id LEFT JOIN run_metrics m ON m.run_id = r.id"
	columns := append(append([]string{}, runColumns...), "COALESCE(w.name, '')", "m.primary_score")
	list := psql.Select(columns...).
		From(from).
		OrderBy("r.requested_at DESC", "r.id DESC")
	count := psql.Select("COUNT(*)").From(from)
	if len(where) > 0 {
		list = list.Where(where)
		count = count.Where(where)
	}
	if filter.Limit > 0 {
		list = list.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		list = list.Offset(uint64(filter.Offset))
	}
	return list, count
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]repo.RunRecord, int, error) {
	if s == nil || s.db == nil {
		return nil, 0, errors.New("run store not initialized")
	}
	listBuilder, countBuilder := buildRunListQueries(filter)

	countSQL, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count runs query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query, args, err := listBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := make([]repo.RunRecord, 0)
	for rows.Next() {
		var (
			record repo.RunRecord
			score  sql.NullFloat64
		)
		run, err := scanRun(rows, &record.WorkflowName, &score)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		record.Run = run
		record.PrimaryScore = floatPtr(score)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return records, total, nil
}

// UpdateRunState persists mutable lifecycle fields only.
func (s *RunStore) UpdateRunState(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return errors.New("run store not initialized")
	}
	if !run.Status.Valid() {
		return domain.NewValidationError("status", "unknown status "+string(run.Status))
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE workflow_runs
		 SET status = $2,
		     started_at = $3,
		     finished_at = $4,
		     error_summary = $5,
		     run_name = COALESCE($6, run_name)
		 WHERE id = $1`,
		strings.TrimSpace(run.ID),
		string(run.Status),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		nullIfEmpty(run.ErrorSummary),
		nullIfEmpty(run.RunName),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return rowsAffected(res)
}

// DeleteRun relies on cascading foreign keys for links, events and metrics.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("run store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_runs WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		if pg.IsInvalidText(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("delete run: %w", err)
	}
	return rowsAffected(res)
}

func scanRun(row scanner, extra ...any) (domain.Run, error) {
	var (
		run                                        domain.Run
		workflowID, datasetID, runName, errSummary sql.NullString
		status                                     string
		startedAt, finishedAt                      sql.NullTime
		paramsJSON, labelsJSON                     []byte
	)
	dest := []any{
		&run.ID,
		&workflowID,
		&run.OwnerUserID,
		&run.ExternalRunID,
		&datasetID,
		&runName,
		&run.WorkDir,
		&status,
		&run.RequestedAt,
		&startedAt,
		&finishedAt,
		&paramsJSON,
		&labelsJSON,
		&errSummary,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Run{}, err
	}
	run.WorkflowID = workflowID.String
	run.ExternalDatasetID = datasetID.String
	run.RunName = runName.String
	run.ErrorSummary = errSummary.String
	run.Status = domain.RunStatus(status)
	run.RequestedAt = run.RequestedAt.UTC()
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)

	params, err := decodeMetadata(paramsJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode params: %w", err)
	}
	labels, err := decodeMetadata(labelsJSON)
	if err != nil {
		return domain.Run{}, fmt.Errorf("decode labels: %w", err)
	}
	run.Params = params
	run.Labels = labels
	return run, nil
}
