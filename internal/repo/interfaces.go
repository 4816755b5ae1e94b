package repo

import (
	"context"

	"github.com/bindflow/runledger/internal/domain"
)

// ErrNotFound is returned by every repository when a row is absent.
var ErrNotFound = domain.ErrNotFound

type RunFilter struct {
	OwnerUserID     string
	Statuses        []domain.RunStatus
	Search          string
	NonTerminalOnly bool
	// Unscored keeps runs without a recorded primary score.
	Unscored bool
	Limit    int
	Offset   int
}

// ProvenancePage selects links of one direction, ordered by object identity,
// strictly after the given identity when set.
type ProvenancePage struct {
	RunID     string
	Direction domain.Direction
	After     *domain.ObjectIdentity
	Limit     int
}

// RunRecord is a run joined with the catalog name and metrics score used by listings.
type RunRecord struct {
	Run          domain.Run
	WorkflowName string
	PrimaryScore *float64
}

// UserRepository manages app users keyed by external subject.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserBySubject(ctx context.Context, subject string) (domain.User, error)
	UpdateUserProfile(ctx context.Context, id, name, email string) error
	DeleteUser(ctx context.Context, id string) error
}

// WorkflowRepository manages catalog entries.
type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, workflow domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	ListWorkflows(ctx context.Context, limit int) ([]domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// RunRepository manages run rows. Owner and external identity are immutable.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	GetRunForUpdate(ctx context.Context, id string) (domain.Run, error)
	GetRunByExternalID(ctx context.Context, externalRunID string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, int, error)
	UpdateRunState(ctx context.Context, run domain.Run) error
	DeleteRun(ctx context.Context, id string) error
}

// ObjectRepository manages immutable storage object references.
// InsertObject reports an existing identity as a *domain.ConflictError.
type ObjectRepository interface {
	InsertObject(ctx context.Context, object domain.StorageObject) error
	GetObject(ctx context.Context, id string) (domain.StorageObject, error)
	GetObjectByIdentity(ctx context.Context, identity domain.ObjectIdentity) (domain.StorageObject, error)
	DeleteObject(ctx context.Context, id string) error
}

// ProvenanceRepository manages run inputs and outputs.
type ProvenanceRepository interface {
	AttachLink(ctx context.Context, link domain.ProvenanceLink) (bool, error)
	ListProvenancePage(ctx context.Context, page ProvenancePage) ([]domain.ProvenanceEntry, error)
}

// StatusEventRepository is append-only.
type StatusEventRepository interface {
	AppendStatusEvent(ctx context.Context, event domain.StatusEvent) (int64, error)
	ListStatusEvents(ctx context.Context, runID string) ([]domain.StatusEvent, error)
}

// MetricsRepository keeps at most one metrics row per run.
type MetricsRepository interface {
	UpsertMetrics(ctx context.Context, metrics domain.RunMetrics) error
	GetMetrics(ctx context.Context, runID string) (domain.RunMetrics, error)
}

// Repositories groups the repositories that share one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Workflows() WorkflowRepository
	Runs() RunRepository
	Objects() ObjectRepository
	Provenance() ProvenanceRepository
	StatusEvents() StatusEventRepository
	Metrics() MetricsRepository
}

// Store runs multi-row mutations atomically. Writes made through tx inside fn
// become visible together when fn returns nil, and not at all otherwise.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	Ping(ctx context.Context) error
}
