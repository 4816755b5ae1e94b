package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/platform/objectstore"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/bindflow/runledger/internal/repo/memory"
	"github.com/bindflow/runledger/internal/service/access"
	"github.com/bindflow/runledger/internal/service/objects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	svc   *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, u := range []domain.User{
		{ID: "U1", ExternalSubject: "sub-1", Name: "One", Email: "one@example.org"},
		{ID: "U2", ExternalSubject: "sub-2", Name: "Two", Email: "two@example.org"},
	} {
		require.NoError(t, store.Users().CreateUser(ctx, u))
	}
	svc := New(store, access.NewGate(store.Runs()), objects.New(store.Objects(), objects.Config{}))
	require.NotNil(t, svc)
	return fixture{store: store, svc: svc}
}

func (f fixture) launch(t *testing.T, owner, externalRunID, workDir string) domain.Run {
	t.Helper()
	run, err := f.svc.CreateRun(context.Background(), CreateInput{
		OwnerUserID:   owner,
		ExternalRunID: externalRunID,
		WorkDir:       workDir,
		RunName:       "run " + externalRunID,
	})
	require.NoError(t, err)
	return run
}

// requireStatusMatchesTrail checks that the run row reflects its latest event.
func (f fixture) requireStatusMatchesTrail(t *testing.T, runID string) {
	t.Helper()
	ctx := context.Background()
	run, err := f.store.Runs().GetRun(ctx, runID)
	require.NoError(t, err)
	events, err := f.store.StatusEvents().ListStatusEvents(ctx, runID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, run.Status, events[len(events)-1].Status)
}

func TestCreateRunStartsPendingWithOneEvent(t *testing.T) {
	f := newFixture(t)
	run := f.launch(t, "U1", "ext-1", "1001")
	assert.Equal(t, domain.RunStatusPending, run.Status)

	events, err := f.svc.ListEvents(context.Background(), "U1", run.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RunStatusPending, events[0].Status)
	f.requireStatusMatchesTrail(t, run.ID)
}

func TestCreateRunConflictsNameTheField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.launch(t, "U1", "ext-1", "1001")

	_, err := f.svc.CreateRun(ctx, CreateInput{OwnerUserID: "U1", ExternalRunID: "ext-1", WorkDir: "2002"})
	require.ErrorIs(t, err, domain.ErrConflict)
	field, _ := domain.ConflictField(err)
	assert.Equal(t, "external_run_id", field)

	_, err = f.svc.CreateRun(ctx, CreateInput{OwnerUserID: "U2", ExternalRunID: "ext-2", WorkDir: "1001"})
	require.ErrorIs(t, err, domain.ErrConflict)
	field, _ = domain.ConflictField(err)
	assert.Equal(t, "work_dir", field)

	page, err := f.svc.ListRuns(ctx, "U2", ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "failed creation must not leave rows behind")
}

func TestCreateRunValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRun(context.Background(), CreateInput{ExternalRunID: "x", WorkDir: "1"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.CreateRun(context.Background(), CreateInput{OwnerUserID: "ghost", ExternalRunID: "x", WorkDir: "1"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []domain.RunStatus{domain.RunStatusSucceeded, domain.RunStatusFailed, domain.RunStatusCanceled} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			run := f.launch(t, "U1", "ext-"+string(terminal), "wd-"+string(terminal))

			_, err := f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: domain.RunStatusRunning})
			require.NoError(t, err)
			_, err = f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: terminal})
			require.NoError(t, err)
			f.requireStatusMatchesTrail(t, run.ID)

			before, err := f.store.StatusEvents().ListStatusEvents(ctx, run.ID)
			require.NoError(t, err)

			for _, next := range []domain.RunStatus{terminal, domain.RunStatusRunning, domain.RunStatusPending, domain.RunStatusFailed} {
				_, err := f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: next})
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				var invalid *domain.InvalidTransitionError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, terminal, invalid.From)
			}

			after, err := f.store.StatusEvents().ListStatusEvents(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			f.requireStatusMatchesTrail(t, run.ID)
		})
	}
}

func TestUpdateStatusStampsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	running, err := f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: domain.RunStatusRunning, Note: "picked up"})
	require.NoError(t, err)
	require.NotNil(t, running.StartedAt)
	assert.Nil(t, running.FinishedAt)

	failed, err := f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: domain.RunStatusFailed, ErrorSummary: "OOM"})
	require.NoError(t, err)
	require.NotNil(t, failed.FinishedAt)

	stored, err := f.store.Runs().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "OOM", stored.ErrorSummary)
	assert.Equal(t, running.StartedAt, stored.StartedAt)

	_, err = f.svc.UpdateStatus(ctx, "missing", StatusUpdate{Status: domain.RunStatusRunning})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: "sleeping"})
	require.Error(t, err)
}

func TestConcurrentStatusUpdatesKeepRowAndTrailInSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	statuses := []domain.RunStatus{
		domain.RunStatusSubmitted, domain.RunStatusRunning, domain.RunStatusRunning,
		domain.RunStatusSucceeded, domain.RunStatusFailed, domain.RunStatusCanceled,
	}
	var wg sync.WaitGroup
	for _, status := range statuses {
		wg.Add(1)
		go func(status domain.RunStatus) {
			defer wg.Done()
			_, _ = f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: status})
		}(status)
	}
	wg.Wait()

	f.requireStatusMatchesTrail(t, run.ID)
	events, err := f.store.StatusEvents().ListStatusEvents(ctx, run.ID)
	require.NoError(t, err)
	terminal := 0
	for _, event := range events {
		if event.Status.Terminal() {
			terminal++
		}
	}
	assert.LessOrEqual(t, terminal, 1)
}

func TestForeignRunLooksMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	_, foreign := f.svc.GetRun(ctx, "U2", run.ID)
	_, missing := f.svc.GetRun(ctx, "U2", "no-such-run")
	require.ErrorIs(t, foreign, domain.ErrNotFound)
	require.ErrorIs(t, missing, domain.ErrNotFound)
	assert.Equal(t, missing.Error(), foreign.Error())

	_, err := f.svc.Cancel(ctx, "U2", run.ID, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Delete(ctx, "U2", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ListProvenance(ctx, "U2", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetMetrics(ctx, "U2", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ListEvents(ctx, "U2", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ReportStatus(ctx, "U2", run.ID, StatusUpdate{Status: domain.RunStatusRunning})
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.store.Runs().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, got.Status)
}

func TestAttachInputIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")
	in := AttachInput{Object: objects.Descriptor{Bucket: "bucket1", Key: "key1", Version: "v1"}, TypeTag: "pdb"}

	first, err := f.svc.AttachInput(ctx, "U1", run.ID, in)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{ObjectID: first.Object.ID, TypeTag: "pdb"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Object.ID, second.Object.ID)

	seq, err := f.svc.ListProvenance(ctx, "U1", run.ID)
	require.NoError(t, err)
	entries, err := CollectProvenance(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DirectionInput, entries[0].Link.Direction)

	// The same object may also be an output of the same run.
	out, err := f.svc.AttachOutput(ctx, "U1", run.ID, AttachInput{ObjectID: first.Object.ID, TypeTag: "pdb"})
	require.NoError(t, err)
	assert.True(t, out.Created)
}

func TestAttachValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	_, err := f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Bucket: "b", Key: "k"}})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{ObjectID: "nope", TypeTag: "pdb"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Key: "k"}, TypeTag: "pdb"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestListProvenanceOrderingPagingAndRestart(t *testing.T) {
	f := newFixture(t)
	f.svc.pageSize = 2
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	for _, key := range []string{"c", "a", "b"} {
		_, err := f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Bucket: "in", Key: key}, TypeTag: "fasta"})
		require.NoError(t, err)
	}
	for _, version := range []string{"v2", "v1"} {
		_, err := f.svc.AttachOutput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Bucket: "out", Key: "r.csv", Version: version}, TypeTag: "csv"})
		require.NoError(t, err)
	}

	seq, err := f.svc.ListProvenance(ctx, "U1", run.ID)
	require.NoError(t, err)

	collect := func() []string {
		var got []string
		for entry, err := range seq {
			require.NoError(t, err)
			got = append(got, fmt.Sprintf("%s:%s", entry.Link.Direction, entry.Object.Identity))
		}
		return got
	}
	want := []string{
		"input:s3://in/a",
		"input:s3://in/b",
		"input:s3://in/c",
		"output:s3://out/r.csv?versionId=v1",
		"output:s3://out/r.csv?versionId=v2",
	}
	assert.Equal(t, want, collect())
	assert.Equal(t, want, collect(), "sequence must be restartable")

	var first []string
	for entry := range seq {
		first = append(first, entry.Object.Identity.Key)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, first)
}

func TestRecordMetricsReplacesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	score := 0.5
	_, err := f.svc.RecordMetrics(ctx, run.ID, &score, domain.Metadata{"designs": 4, "note": "first"})
	require.NoError(t, err)
	_, err = f.svc.RecordMetrics(ctx, run.ID, nil, domain.Metadata{"designs": 9})
	require.NoError(t, err)

	metrics, err := f.svc.GetMetrics(ctx, "U1", run.ID)
	require.NoError(t, err)
	assert.Nil(t, metrics.PrimaryScore)
	assert.Equal(t, domain.Metadata{"designs": 9}, metrics.Extra)

	_, err = f.svc.RecordMetrics(ctx, "missing", &score, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.RecordMetricsAs(ctx, "U2", run.ID, &score, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")

	attached, err := f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Bucket: "b", Key: "in"}, TypeTag: "pdb"})
	require.NoError(t, err)
	_, err = f.svc.AttachOutput(ctx, "U1", run.ID, AttachInput{Object: objects.Descriptor{Bucket: "b", Key: "out"}, TypeTag: "csv"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, run.ID, StatusUpdate{Status: domain.RunStatusRunning})
	require.NoError(t, err)
	score := 0.7
	_, err = f.svc.RecordMetrics(ctx, run.ID, &score, nil)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, "U1", run.ID)
	require.NoError(t, err)

	_, err = f.store.Runs().GetRun(ctx, run.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	events, err := f.store.StatusEvents().ListStatusEvents(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = f.store.Metrics().GetMetrics(ctx, run.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	for _, direction := range []domain.Direction{domain.DirectionInput, domain.DirectionOutput} {
		page, err := f.store.Provenance().ListProvenancePage(ctx, repo.ProvenancePage{RunID: run.ID, Direction: direction})
		require.NoError(t, err)
		assert.Empty(t, page)
	}

	// Storage objects outlive the run and become deletable once unreferenced.
	_, err = f.store.Objects().GetObject(ctx, attached.Object.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.Objects().DeleteObject(ctx, attached.Object.ID))
}

func TestBulkDeleteReportsPerItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.launch(t, "U1", "ext-a", "1")
	b := f.launch(t, "U2", "ext-b", "2")
	_, err := f.svc.AttachInput(ctx, "U2", b.ID, AttachInput{Object: objects.Descriptor{Bucket: "b", Key: "k"}, TypeTag: "pdb"})
	require.NoError(t, err)

	result, err := f.svc.BulkDelete(ctx, "U1", []string{a.ID, b.ID, a.ID, ""})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, result.Deleted)
	assert.Equal(t, []string{b.ID}, result.Denied)
	assert.Empty(t, result.Failed)

	got, err := f.svc.GetRun(ctx, "U2", b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, got.Run.Status)
	seq, err := f.svc.ListProvenance(ctx, "U2", b.ID)
	require.NoError(t, err)
	entries, err := CollectProvenance(seq)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	events, err := f.svc.ListEvents(ctx, "U2", b.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListRunsFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workflow := domain.Workflow{ID: "wf-1", Name: "Binder Design"}
	require.NoError(t, f.store.Workflows().CreateWorkflow(ctx, workflow))

	var ids []string
	for i := 0; i < 5; i++ {
		run, err := f.svc.CreateRun(ctx, CreateInput{
			OwnerUserID:   "U1",
			WorkflowID:    "wf-1",
			ExternalRunID: fmt.Sprintf("ext-%d", i),
			WorkDir:       fmt.Sprintf("%d", 1000+i),
			RunName:       fmt.Sprintf("job-%d", i),
		})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	f.launch(t, "U2", "other", "9999")

	_, err := f.svc.UpdateStatus(ctx, ids[1], StatusUpdate{Status: domain.RunStatusSucceeded})
	require.NoError(t, err)
	score := 0.87654
	_, err = f.svc.RecordMetrics(ctx, ids[1], &score, nil)
	require.NoError(t, err)
	_, err = f.svc.RecordMetrics(ctx, ids[2], &score, nil)
	require.NoError(t, err)

	page, err := f.svc.ListRuns(ctx, "U1", ListQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Runs, 2)
	for i := 1; i < len(page.Runs); i++ {
		assert.False(t, page.Runs[i].Run.RequestedAt.After(page.Runs[i-1].Run.RequestedAt))
	}

	completed, err := f.svc.ListRuns(ctx, "U1", ListQuery{Statuses: []string{"Completed"}})
	require.NoError(t, err)
	require.Len(t, completed.Runs, 1)
	assert.Equal(t, ids[1], completed.Runs[0].Run.ID)
	require.NotNil(t, completed.Runs[0].Score)
	assert.Equal(t, 0.877, *completed.Runs[0].Score)
	assert.Equal(t, "Binder Design", completed.Runs[0].WorkflowName)
	assert.Equal(t, "Completed", completed.Runs[0].UIStatus())

	pending, err := f.svc.ListRuns(ctx, "U1", ListQuery{Statuses: []string{"pending"}})
	require.NoError(t, err)
	assert.Equal(t, 4, pending.Total)
	for _, view := range pending.Runs {
		assert.Nil(t, view.Score, "score is only shown for succeeded runs")
	}

	searched, err := f.svc.ListRuns(ctx, "U1", ListQuery{Search: "JOB-3"})
	require.NoError(t, err)
	assert.Equal(t, 1, searched.Total)
	byWorkflow, err := f.svc.ListRuns(ctx, "U1", ListQuery{Search: "binder"})
	require.NoError(t, err)
	assert.Equal(t, 5, byWorkflow.Total)

	_, err = f.svc.ListRuns(ctx, "U1", ListQuery{Limit: 201})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.ListRuns(ctx, "U1", ListQuery{Statuses: []string{"Paused"}})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestListActiveSpansPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.launch(t, "U1", fmt.Sprintf("ext-%d", i), fmt.Sprintf("%d", i))
	}
	done := f.launch(t, "U2", "done", "done")
	_, err := f.svc.UpdateStatus(ctx, done.ID, StatusUpdate{Status: domain.RunStatusSucceeded})
	require.NoError(t, err)

	active, err := f.svc.ListActive(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, active, 5)

	unscored, err := f.svc.ListUnscored(ctx, 2)
	require.NoError(t, err)
	require.Len(t, unscored, 1)
	assert.Equal(t, done.ID, unscored[0].ID)

	score := 0.4
	_, err = f.svc.RecordMetrics(ctx, done.ID, &score, nil)
	require.NoError(t, err)
	unscored, err = f.svc.ListUnscored(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, unscored)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.svc.CreateRun(ctx, CreateInput{OwnerUserID: "U1", ExternalRunID: "run-1", WorkDir: "1001"})
	require.NoError(t, err)

	_, err = f.svc.AttachInput(ctx, "U1", run.ID, AttachInput{
		Object:  objects.Descriptor{Bucket: "bucket1", Key: "key1", Version: "v1"},
		TypeTag: "pdb",
	})
	require.NoError(t, err)

	_, err = f.svc.ReportStatus(ctx, "U1", run.ID, StatusUpdate{Status: domain.RunStatusRunning})
	require.NoError(t, err)
	f.requireStatusMatchesTrail(t, run.ID)
	_, err = f.svc.ReportStatus(ctx, "U1", run.ID, StatusUpdate{Status: domain.RunStatusSucceeded})
	require.NoError(t, err)
	f.requireStatusMatchesTrail(t, run.ID)

	score := 0.93
	_, err = f.svc.RecordMetricsAs(ctx, "U1", run.ID, &score, nil)
	require.NoError(t, err)

	view, err := f.svc.GetRun(ctx, "U1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, view.Run.Status)
	require.NotNil(t, view.Score)
	assert.Equal(t, 0.93, *view.Score)

	seq, err := f.svc.ListProvenance(ctx, "U1", run.ID)
	require.NoError(t, err)
	entries, err := CollectProvenance(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ObjectIdentity{Bucket: "bucket1", Key: "key1", Version: "v1"}, entries[0].Object.Identity)

	metrics, err := f.svc.GetMetrics(ctx, "U1", run.ID)
	require.NoError(t, err)
	require.NotNil(t, metrics.PrimaryScore)
	assert.Equal(t, 0.93, *metrics.PrimaryScore)

	_, err = f.svc.GetRun(ctx, "U2", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type prefixLister []objectstore.ObjectInfo

func (l prefixLister) ListObjects(_ context.Context, bucket, prefix string) ([]objectstore.ObjectInfo, error) {
	var out []objectstore.ObjectInfo
	for _, o := range l {
		if o.Bucket == bucket && strings.HasPrefix(o.Key, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestAttachOutputPrefixLinksEachListedObjectOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := f.launch(t, "U1", "ext-1", "1001")
	lister := prefixLister{
		{Bucket: "results", Key: "results/ext-1/a.pdb", Size: 10, ETag: "aa"},
		{Bucket: "results", Key: "results/ext-1/b.pdb", Size: 20, ETag: "bb"},
		{Bucket: "results", Key: "results/ext-2/c.pdb", Size: 30},
	}

	created, err := f.svc.AttachOutputPrefix(ctx, "U1", run.ID, lister, "results", "results/ext-1/", "pdb")
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = f.svc.AttachOutputPrefix(ctx, "U1", run.ID, lister, "results", "results/ext-1/", "pdb")
	require.NoError(t, err)
	assert.Zero(t, created)

	seq, err := f.svc.ListProvenance(ctx, "U1", run.ID)
	require.NoError(t, err)
	entries, err := CollectProvenance(seq)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, domain.DirectionOutput, e.Link.Direction)
		assert.Equal(t, "pdb", e.Link.TypeTag)
	}

	_, err = f.svc.AttachOutputPrefix(ctx, "U2", run.ID, lister, "results", "results/ext-1/", "pdb")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
