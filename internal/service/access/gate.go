// Package access centralizes the ownership check applied before any run-scoped
// read or mutation. Denials are reported as domain.ErrNotFound so callers can
// never tell a foreign run from a missing one.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

type Action string

const (
	ActionView          Action = "view"
	ActionUpdateStatus  Action = "update_status"
	ActionCancel        Action = "cancel"
	ActionDelete        Action = "delete"
	ActionAttach        Action = "attach"
	ActionReadLineage   Action = "read_provenance"
	ActionRecordMetrics Action = "record_metrics"
	ActionReadLogs      Action = "read_logs"
)

type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

type Gate struct {
	runs repo.RunRepository
}

func NewGate(runs repo.RunRepository) *Gate {
	if runs == nil {
		return nil
	}
	return &Gate{runs: runs}
}

// Authorize allows the action iff the caller owns the run. The rule is the same
// for every action. A missing run is Denied.
func (g *Gate) Authorize(ctx context.Context, callerUserID, runID string, _ Action) (Decision, error) {
	_, err := g.Require(ctx, callerUserID, runID, ActionView)
	if errors.Is(err, domain.ErrNotFound) {
		return Denied, nil
	}
	if err != nil {
		return Denied, err
	}
	return Allowed, nil
}

// Require returns the run when the caller may act on it and domain.ErrNotFound
// otherwise.
func (g *Gate) Require(ctx context.Context, callerUserID, runID string, action Action) (domain.Run, error) {
	return g.RequireWith(ctx, g.runs, callerUserID, runID, action)
}

// RequireWith applies the gate using runs, so it can run inside a transaction.
func (g *Gate) RequireWith(ctx context.Context, runs repo.RunRepository, callerUserID, runID string, _ Action) (domain.Run, error) {
	callerUserID = strings.TrimSpace(callerUserID)
	runID = strings.TrimSpace(runID)
	if callerUserID == "" || runID == "" {
		return domain.Run{}, domain.ErrNotFound
	}
	run, err := runs.GetRun(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !run.OwnedBy(callerUserID) {
		return domain.Run{}, domain.ErrNotFound
	}
	return run, nil
}
