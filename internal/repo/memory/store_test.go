package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/repo"
)

func seedUser(t *testing.T, s *Store, id, subject, email string) {
	t.Helper()
	require.NoError(t, s.Users().CreateUser(context.Background(), domain.User{
		ID: id, ExternalSubject: subject, Name: id, Email: email,
	}))
}

func seedRun(t *testing.T, s *Store, id, owner, externalID, workDir string) {
	t.Helper()
	require.NoError(t, s.Runs().CreateRun(context.Background(), domain.Run{
		ID: id, OwnerUserID: owner, ExternalRunID: externalID, WorkDir: workDir, Status: domain.RunStatusPending,
	}))
}

func TestUserUniqueness(t *testing.T) {
	s := New()
	seedUser(t, s, "u1", "auth|1", "A@Example.org")

	err := s.Users().CreateUser(context.Background(), domain.User{ID: "u2", ExternalSubject: "auth|1", Email: "b@example.org"})
	field, ok := domain.ConflictField(err)
	require.True(t, ok)
	assert.Equal(t, "external_subject", field)

	err = s.Users().CreateUser(context.Background(), domain.User{ID: "u3", ExternalSubject: "auth|3", Email: "a@example.org"})
	field, ok = domain.ConflictField(err)
	require.True(t, ok)
	assert.Equal(t, "email", field)
}

func TestDeleteUserRestrictedWhileOwningRuns(t *testing.T) {
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	seedRun(t, s, "r1", "u1", "ext-1", "1001")

	err := s.Users().DeleteUser(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, s.Runs().DeleteRun(context.Background(), "r1"))
	require.NoError(t, s.Users().DeleteUser(context.Background(), "u1"))
}

func TestRunUniqueConstraints(t *testing.T) {
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	seedRun(t, s, "r1", "u1", "ext-1", "1001")

	err := s.Runs().CreateRun(context.Background(), domain.Run{ID: "r2", OwnerUserID: "u1", ExternalRunID: "ext-1", WorkDir: "2002", Status: domain.RunStatusPending})
	field, _ := domain.ConflictField(err)
	assert.Equal(t, "external_run_id", field)

	err = s.Runs().CreateRun(context.Background(), domain.Run{ID: "r3", OwnerUserID: "u1", ExternalRunID: "ext-3", WorkDir: "1001", Status: domain.RunStatusPending})
	field, _ = domain.ConflictField(err)
	assert.Equal(t, "work_dir", field)

	err = s.Runs().CreateRun(context.Background(), domain.Run{ID: "r4", OwnerUserID: "nobody", ExternalRunID: "ext-4", WorkDir: "4004", Status: domain.RunStatusPending})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx repo.Repositories) error {
		if err := tx.Runs().CreateRun(ctx, domain.Run{ID: "r1", OwnerUserID: "u1", ExternalRunID: "ext-1", WorkDir: "1", Status: domain.RunStatusPending}); err != nil {
			return err
		}
		if _, err := tx.StatusEvents().AppendStatusEvent(ctx, domain.StatusEvent{RunID: "r1", Status: domain.RunStatusPending}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Runs().GetRun(context.Background(), "r1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	events, err := s.StatusEvents().ListStatusEvents(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	seedRun(t, s, "r1", "u1", "ext-1", "1")
	seedRun(t, s, "r2", "u1", "ext-2", "2")
	require.NoError(t, s.Objects().InsertObject(ctx, domain.StorageObject{ID: "o1", Identity: domain.ObjectIdentity{Bucket: "b", Key: "k"}}))

	for _, runID := range []string{"r1", "r2"} {
		_, err := s.Provenance().AttachLink(ctx, domain.ProvenanceLink{RunID: runID, ObjectID: "o1", Direction: domain.DirectionInput, TypeTag: "pdb"})
		require.NoError(t, err)
		_, err = s.Provenance().AttachLink(ctx, domain.ProvenanceLink{RunID: runID, ObjectID: "o1", Direction: domain.DirectionOutput, TypeTag: "csv"})
		require.NoError(t, err)
		_, err = s.StatusEvents().AppendStatusEvent(ctx, domain.StatusEvent{RunID: runID, Status: domain.RunStatusPending})
		require.NoError(t, err)
		require.NoError(t, s.Metrics().UpsertMetrics(ctx, domain.RunMetrics{RunID: runID}))
	}

	require.NoError(t, s.Runs().DeleteRun(ctx, "r1"))

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.st.inputs {
		assert.NotEqual(t, "r1", key.runID)
	}
	for key := range s.st.outputs {
		assert.NotEqual(t, "r1", key.runID)
	}
	for _, event := range s.st.events {
		assert.NotEqual(t, "r1", event.RunID)
	}
	_, ok := s.st.metrics["r1"]
	assert.False(t, ok)
	assert.Len(t, s.st.inputs, 1)
	assert.Len(t, s.st.outputs, 1)
	assert.Len(t, s.st.events, 1)
}

func TestDeleteObjectRestrictedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	seedRun(t, s, "r1", "u1", "ext-1", "1")
	require.NoError(t, s.Objects().InsertObject(ctx, domain.StorageObject{ID: "o1", Identity: domain.ObjectIdentity{Bucket: "b", Key: "k"}}))
	_, err := s.Provenance().AttachLink(ctx, domain.ProvenanceLink{RunID: "r1", ObjectID: "o1", Direction: domain.DirectionInput, TypeTag: "pdb"})
	require.NoError(t, err)

	require.ErrorIs(t, s.Objects().DeleteObject(ctx, "o1"), domain.ErrConflict)
	require.NoError(t, s.Runs().DeleteRun(ctx, "r1"))
	require.NoError(t, s.Objects().DeleteObject(ctx, "o1"))
}

func TestDeleteWorkflowNullsRunReference(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	require.NoError(t, s.Workflows().CreateWorkflow(ctx, domain.Workflow{ID: "w1", Name: "bindcraft"}))
	require.NoError(t, s.Runs().CreateRun(ctx, domain.Run{ID: "r1", WorkflowID: "w1", OwnerUserID: "u1", ExternalRunID: "ext-1", WorkDir: "1", Status: domain.RunStatusPending}))

	require.NoError(t, s.Workflows().DeleteWorkflow(ctx, "w1"))
	run, err := s.Runs().GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, run.WorkflowID)
}

func TestListRunsOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedUser(t, s, "u1", "auth|1", "a@example.org")
	seedUser(t, s, "u2", "auth|2", "b@example.org")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.Runs().CreateRun(ctx, domain.Run{
			ID: id, OwnerUserID: "u1", ExternalRunID: "ext-" + id, WorkDir: id, RunName: "design " + id,
			Status: domain.RunStatusPending, RequestedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	seedRun(t, s, "other", "u2", "ext-other", "other")

	records, total, err := s.Runs().ListRuns(ctx, repo.RunFilter{OwnerUserID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 2)
	assert.Equal(t, "r3", records[0].Run.ID)
	assert.Equal(t, "r2", records[1].Run.ID)

	records, _, err = s.Runs().ListRuns(ctx, repo.RunFilter{OwnerUserID: "u1", Search: "R1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].Run.ID)
}
