// Package reconcile keeps non-terminal runs in step with the execution
// platform and scores succeeded runs from their result files.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/platform/objectstore"
	"github.com/bindflow/runledger/internal/platform/seqera"
	"github.com/bindflow/runledger/internal/service/objects"
	"github.com/bindflow/runledger/internal/service/runs"
)

// Describer reports the platform view of a workflow execution.
type Describer interface {
	Describe(ctx context.Context, externalRunID string) (seqera.Workflow, error)
}

// ResultReader opens result files, typically *objectstore.Client.
type ResultReader interface {
	ResultsBucket() string
	OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error)
}

// Ledger is the part of the run ledger the syncer drives.
type Ledger interface {
	ListActive(ctx context.Context, batch int) ([]domain.Run, error)
	ListUnscored(ctx context.Context, batch int) ([]domain.Run, error)
	UpdateStatus(ctx context.Context, runID string, upd runs.StatusUpdate) (domain.Run, error)
	RecordMetrics(ctx context.Context, runID string, primaryScore *float64, extra domain.Metadata) (domain.RunMetrics, error)
	RecordOutputs(ctx context.Context, runID string, typeTag string, descs []objects.Descriptor) (int, error)
}

// Observer receives the outcome of every pass.
type Observer interface {
	ReconcilePass(transitions, scored, failures int)
}

// Stats summarises one pass.
type Stats struct {
	Checked     int
	Transitions int
	Scored      int
	Failures    int
}

type Syncer struct {
	logger   *slog.Logger
	ledger   Ledger
	platform Describer
	results  ResultReader
	observer Observer
	cfg      Config
}

// New returns nil when the ledger or platform is missing. results may be nil,
// in which case runs are never scored.
func New(logger *slog.Logger, ledger Ledger, platform Describer, results ResultReader, cfg Config) *Syncer {
	if ledger == nil || platform == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Syncer{logger: logger, ledger: ledger, platform: platform, results: results, cfg: cfg}
}

func (s *Syncer) WithObserver(o Observer) *Syncer {
	if s != nil {
		s.observer = o
	}
	return s
}

// Start runs the sync loop until ctx is done.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
}

func (s *Syncer) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.SyncOnce(ctx)
			if s.observer != nil {
				s.observer.ReconcilePass(stats.Transitions, stats.Scored, stats.Failures)
			}
			if stats.Transitions > 0 || stats.Scored > 0 || stats.Failures > 0 {
				s.info("reconcile pass",
					"checked", stats.Checked,
					"transitions", stats.Transitions,
					"scored", stats.Scored,
					"failures", stats.Failures,
				)
			}
		}
	}
}

// SyncOnce reconciles every active run, then scores succeeded runs that have
// no primary score yet. Failures are logged per run and never stop the pass.
func (s *Syncer) SyncOnce(ctx context.Context) Stats {
	var stats Stats

	active, err := s.ledger.ListActive(ctx, s.cfg.Batch)
	if err != nil {
		s.warn("list active runs failed", "error", err)
		stats.Failures++
		return stats
	}
	for _, run := range active {
		if ctx.Err() != nil {
			return stats
		}
		stats.Checked++
		n, err := s.syncRun(ctx, run)
		stats.Transitions += n
		if err != nil {
			stats.Failures++
			s.warn("sync run failed", "run_id", run.ID, "external_run_id", run.ExternalRunID, "error", err)
		}
	}

	if s.results == nil {
		return stats
	}
	unscored, err := s.ledger.ListUnscored(ctx, s.cfg.Batch)
	if err != nil {
		s.warn("list unscored runs failed", "error", err)
		stats.Failures++
		return stats
	}
	for _, run := range unscored {
		if ctx.Err() != nil {
			return stats
		}
		scored, err := s.scoreRun(ctx, run)
		if err != nil {
			stats.Failures++
			s.warn("score run failed", "run_id", run.ID, "external_run_id", run.ExternalRunID, "error", err)
			continue
		}
		if scored {
			stats.Scored++
		}
	}
	return stats
}

// syncRun applies the platform status to the run. A run that reached a
// terminal state on the platform without being seen running gets its running
// transition first, so started_at is recorded.
func (s *Syncer) syncRun(ctx context.Context, run domain.Run) (int, error) {
	wf, err := s.platform.Describe(ctx, run.ExternalRunID)
	if errors.Is(err, seqera.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	target := domain.RunStatusFromPlatform(wf.Status)
	if target == run.Status {
		return 0, nil
	}
	if target == domain.RunStatusSubmitted && run.Status == domain.RunStatusRunning {
		return 0, nil
	}

	steps := make([]runs.StatusUpdate, 0, 2)
	if run.StartedAt == nil && wf.StartedAt != nil && target.Terminal() {
		steps = append(steps, runs.StatusUpdate{
			Status: domain.RunStatusRunning,
			Note:   "observed on platform",
			At:     *wf.StartedAt,
		})
	}
	final := runs.StatusUpdate{
		Status:   target,
		Note:     "observed on platform",
		Metadata: domain.Metadata{"platform_status": wf.Status},
	}
	switch {
	case target == domain.RunStatusRunning && wf.StartedAt != nil:
		final.At = *wf.StartedAt
	case target.Terminal() && wf.CompletedAt != nil:
		final.At = *wf.CompletedAt
	}
	if target == domain.RunStatusFailed {
		final.ErrorSummary = wf.ErrorMessage
	}
	steps = append(steps, final)

	applied := 0
	for _, step := range steps {
		_, err := s.ledger.UpdateStatus(ctx, run.ID, step)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			// Finished or deleted concurrently.
			return applied, nil
		default:
			return applied, err
		}
	}
	return applied, nil
}

// scoreRun reads the result CSV, registers it as a run output and records the
// clamped column maximum as the primary score. A missing file or an empty
// column leaves the run unscored for a later pass.
func (s *Syncer) scoreRun(ctx context.Context, run domain.Run) (bool, error) {
	bucket := s.results.ResultsBucket()
	key := s.cfg.scoreKey(run.ExternalRunID)

	body, info, err := s.results.OpenObject(ctx, bucket, key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	defer body.Close()

	best, ok, err := objectstore.ColumnMax(body, s.cfg.ScoreColumn)
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	if !ok {
		return false, nil
	}
	score := clamp01(best)

	if info.Bucket == "" {
		info.Bucket = bucket
	}
	if info.Key == "" {
		info.Key = key
	}
	if info.ContentType == "" {
		info.ContentType = "text/csv"
	}
	if _, err := s.ledger.RecordOutputs(ctx, run.ID, "csv", []objects.Descriptor{objects.FromListing(info)}); err != nil {
		return false, err
	}
	_, err = s.ledger.RecordMetrics(ctx, run.ID, &score, domain.Metadata{
		"source": domain.ObjectIdentity{Bucket: info.Bucket, Key: info.Key, Version: info.VersionID}.String(),
		"column": s.cfg.ScoreColumn,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func (s *Syncer) info(msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Info(msg, append([]any{"component", "reconciler"}, attrs...)...)
}

func (s *Syncer) warn(msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, _ := attrs[i].(string); key == "error" {
			if err, ok := attrs[i+1].(error); ok && errors.Is(err, context.Canceled) {
				return
			}
		}
	}
	s.logger.Warn(msg, append([]any{"component", "reconciler"}, attrs...)...)
}
