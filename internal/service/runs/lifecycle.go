package runs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/bindflow/runledger/internal/service/access"
)

type StatusUpdate struct {
	Status   domain.RunStatus
	Note     string
	Metadata domain.Metadata
	// At stamps started_at/finished_at. Defaults to now.
	At           time.Time
	ErrorSummary string
}

// UpdateStatus applies a transition without an ownership check. It is the
// entry point for platform synchronisation.
func (s *Service) UpdateStatus(ctx context.Context, runID string, upd StatusUpdate) (domain.Run, error) {
	var (
		prev domain.RunStatus
		next domain.Run
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		var err error
		prev, next, err = s.transition(ctx, tx, strings.TrimSpace(runID), upd)
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	s.observer.StatusChanged(prev, next.Status)
	return next, nil
}

// ReportStatus applies a transition on behalf of the run owner.
func (s *Service) ReportStatus(ctx context.Context, callerUserID, runID string, upd StatusUpdate) (domain.Run, error) {
	var (
		prev domain.RunStatus
		next domain.Run
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		run, err := s.gate.RequireWith(ctx, tx.Runs(), callerUserID, runID, access.ActionUpdateStatus)
		if err != nil {
			return err
		}
		prev, next, err = s.transition(ctx, tx, run.ID, upd)
		return err
	})
	if err != nil {
		return domain.Run{}, err
	}
	s.observer.StatusChanged(prev, next.Status)
	return next, nil
}

// transition locks the run, rejects changes to terminal runs, appends the
// event and syncs the run row. Both writes share tx.
func (s *Service) transition(ctx context.Context, tx repo.Repositories, runID string, upd StatusUpdate) (domain.RunStatus, domain.Run, error) {
	run, err := tx.Runs().GetRunForUpdate(ctx, runID)
	if err != nil {
		return "", domain.Run{}, err
	}
	if err := run.CanTransition(upd.Status); err != nil {
		return "", domain.Run{}, err
	}
	now := s.now().UTC()
	at := upd.At
	if at.IsZero() {
		at = now
	}
	next := run.ApplyStatus(upd.Status, at)
	if summary := strings.TrimSpace(upd.ErrorSummary); summary != "" {
		next.ErrorSummary = summary
	}
	if _, err := tx.StatusEvents().AppendStatusEvent(ctx, domain.StatusEvent{
		RunID:      run.ID,
		Status:     upd.Status,
		Note:       strings.TrimSpace(upd.Note),
		Metadata:   upd.Metadata.Clone(),
		RecordedAt: now,
	}); err != nil {
		return "", domain.Run{}, err
	}
	if err := tx.Runs().UpdateRunState(ctx, next); err != nil {
		return "", domain.Run{}, err
	}
	return run.Status, next, nil
}

// Cancel stops a non-terminal run owned by the caller. The platform is asked
// first; the ledger transition follows in its own short transaction.
func (s *Service) Cancel(ctx context.Context, callerUserID, runID, note string) (domain.Run, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionCancel)
	if err != nil {
		return domain.Run{}, err
	}
	if run.Status.Terminal() {
		return domain.Run{}, &domain.InvalidTransitionError{RunID: run.ID, From: run.Status, To: domain.RunStatusCanceled}
	}
	if s.platform != nil {
		if err := s.platform.Cancel(ctx, run.ExternalRunID); err != nil {
			return domain.Run{}, fmt.Errorf("%w: cancel %s: %v", ErrPlatform, run.ExternalRunID, err)
		}
	}
	if strings.TrimSpace(note) == "" {
		note = "canceled by owner"
	}
	return s.ReportStatus(ctx, callerUserID, run.ID, StatusUpdate{Status: domain.RunStatusCanceled, Note: note})
}

type DeleteResult struct {
	RunID string
	// CanceledOnPlatform is set when the run was still active and had to be
	// stopped before deletion.
	CanceledOnPlatform bool
}

// Delete removes a run owned by the caller together with its provenance
// links, status events and metrics.
func (s *Service) Delete(ctx context.Context, callerUserID, runID string) (DeleteResult, error) {
	run, err := s.gate.Require(ctx, callerUserID, runID, access.ActionDelete)
	if err != nil {
		return DeleteResult{}, err
	}
	result := DeleteResult{RunID: run.ID}
	if s.platform != nil {
		if !run.Status.Terminal() {
			if err := s.platform.Cancel(ctx, run.ExternalRunID); err != nil {
				return DeleteResult{}, fmt.Errorf("%w: cancel %s: %v", ErrPlatform, run.ExternalRunID, err)
			}
			result.CanceledOnPlatform = true
		}
		if err := s.platform.Delete(ctx, run.ExternalRunID); err != nil {
			return DeleteResult{}, fmt.Errorf("%w: delete %s: %v", ErrPlatform, run.ExternalRunID, err)
		}
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx repo.Repositories) error {
		if _, err := s.gate.RequireWith(ctx, tx.Runs(), callerUserID, run.ID, access.ActionDelete); err != nil {
			return err
		}
		return tx.Runs().DeleteRun(ctx, run.ID)
	})
	if err != nil {
		return DeleteResult{}, err
	}
	s.observer.RunsDeleted(1)
	return result, nil
}

type BulkDeleteResult struct {
	Deleted []string
	Denied  []string
	// Failed holds owned runs that could not be deleted, keyed by run id.
	Failed map[string]string
}

// BulkDelete deletes each owned run independently. Runs the caller does not
// own, or that do not exist, are reported as denied and left untouched.
func (s *Service) BulkDelete(ctx context.Context, callerUserID string, runIDs []string) (BulkDeleteResult, error) {
	if strings.TrimSpace(callerUserID) == "" {
		return BulkDeleteResult{}, domain.NewValidationError("owner_user_id", "is required")
	}
	result := BulkDeleteResult{
		Deleted: make([]string, 0, len(runIDs)),
		Denied:  make([]string, 0),
		Failed:  make(map[string]string),
	}
	seen := make(map[string]struct{}, len(runIDs))
	for _, runID := range runIDs {
		runID = strings.TrimSpace(runID)
		if runID == "" {
			continue
		}
		if _, dup := seen[runID]; dup {
			continue
		}
		seen[runID] = struct{}{}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.Delete(ctx, callerUserID, runID)
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, runID)
		case isNotFound(err):
			result.Denied = append(result.Denied, runID)
		default:
			result.Failed[runID] = err.Error()
		}
	}
	return result, nil
}
