package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bindflow/runledger/internal/domain"
	"github.com/bindflow/runledger/internal/platform/auth"
	"github.com/bindflow/runledger/internal/service/catalog"
	"github.com/bindflow/runledger/internal/service/identity"
	"github.com/bindflow/runledger/internal/service/objects"
	"github.com/bindflow/runledger/internal/service/runs"
)

type ledgerAPI struct {
	logger   *slog.Logger
	runs     *runs.Service
	catalog  *catalog.Service
	identity *identity.Service
	// lister backs output discovery; nil when no object store is configured.
	lister objects.Lister
}

func newLedgerAPI(logger *slog.Logger, runSvc *runs.Service, catalogSvc *catalog.Service, identitySvc *identity.Service, lister objects.Lister) *ledgerAPI {
	return &ledgerAPI{
		logger:   logger,
		runs:     runSvc,
		catalog:  catalogSvc,
		identity: identitySvc,
		lister:   lister,
	}
}

// register mounts every route behind authn so ServeMux records the matched
// pattern on the request the access log sees.
func (api *ledgerAPI) register(mux *http.ServeMux, authn func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authn(h))
	}

	handle("GET /me", api.handleMe)

	handle("GET /workflows", api.handleListWorkflows)
	handle("POST /workflows", api.handleCreateWorkflow)
	handle("GET /workflows/{workflow_id}", api.handleGetWorkflow)
	handle("DELETE /workflows/{workflow_id}", api.handleDeleteWorkflow)

	handle("POST /runs", api.handleCreateRun)
	handle("GET /runs", api.handleListRuns)
	handle("POST /runs/bulk-delete", api.handleBulkDelete)
	handle("GET /runs/{run_id}", api.handleGetRun)
	handle("DELETE /runs/{run_id}", api.handleDeleteRun)
	handle("POST /runs/{run_id}/cancel", api.handleCancelRun)
	handle("POST /runs/{run_id}/status", api.handleReportStatus)
	handle("GET /runs/{run_id}/events", api.handleListEvents)
	handle("POST /runs/{run_id}/inputs", api.handleAttach(domain.DirectionInput))
	handle("POST /runs/{run_id}/outputs", api.handleAttach(domain.DirectionOutput))
	handle("POST /runs/{run_id}/outputs/discover", api.handleDiscoverOutputs)
	handle("GET /runs/{run_id}/provenance", api.handleListProvenance)
	handle("PUT /runs/{run_id}/metrics", api.handleRecordMetrics)
	handle("GET /runs/{run_id}/metrics", api.handleGetMetrics)
}

type userResponse struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type workflowResponse struct {
	WorkflowID      string    `json:"workflow_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	RepoURL         string    `json:"repo_url,omitempty"`
	DefaultRevision string    `json:"default_revision,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type runResponse struct {
	RunID             string          `json:"run_id"`
	WorkflowID        string          `json:"workflow_id,omitempty"`
	WorkflowName      string          `json:"workflow_name,omitempty"`
	ExternalRunID     string          `json:"external_run_id"`
	ExternalDatasetID string          `json:"external_dataset_id,omitempty"`
	RunName           string          `json:"run_name,omitempty"`
	WorkDir           string          `json:"work_dir"`
	Status            string          `json:"status"`
	UIStatus          string          `json:"ui_status"`
	RequestedAt       time.Time       `json:"requested_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
	Score             *float64        `json:"score,omitempty"`
	ErrorSummary      string          `json:"error_summary,omitempty"`
	Params            domain.Metadata `json:"params,omitempty"`
	Labels            domain.Metadata `json:"labels,omitempty"`
}

type objectResponse struct {
	ObjectID    string    `json:"object_id"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Version     string    `json:"version,omitempty"`
	URI         string    `json:"uri"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type provenanceResponse struct {
	Direction string          `json:"direction"`
	Type      string          `json:"type"`
	Label     string          `json:"label,omitempty"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
	Object    objectResponse  `json:"object"`
}

type eventResponse struct {
	EventID    int64           `json:"event_id"`
	Status     string          `json:"status"`
	Note       string          `json:"note,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type metricsResponse struct {
	RunID        string          `json:"run_id"`
	PrimaryScore *float64        `json:"primary_score"`
	Extra        domain.Metadata `json:"extra"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toRunResponse(view runs.RunView) runResponse {
	run := view.Run
	return runResponse{
		RunID:             run.ID,
		WorkflowID:        run.WorkflowID,
		WorkflowName:      view.WorkflowName,
		ExternalRunID:     run.ExternalRunID,
		ExternalDatasetID: run.ExternalDatasetID,
		RunName:           run.RunName,
		WorkDir:           run.WorkDir,
		Status:            string(run.Status),
		UIStatus:          view.UIStatus(),
		RequestedAt:       run.RequestedAt,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		Score:             view.Score,
		ErrorSummary:      run.ErrorSummary,
		Params:            run.Params,
		Labels:            run.Labels,
	}
}

func toObjectResponse(o domain.StorageObject) objectResponse {
	return objectResponse{
		ObjectID:    o.ID,
		Bucket:      o.Identity.Bucket,
		Key:         o.Identity.Key,
		Version:     o.Identity.Version,
		URI:         o.Identity.String(),
		SizeBytes:   o.SizeBytes,
		Checksum:    o.Checksum,
		ContentType: o.ContentType,
		CreatedAt:   o.CreatedAt,
	}
}

func toWorkflowResponse(w domain.Workflow) workflowResponse {
	return workflowResponse{
		WorkflowID:      w.ID,
		Name:            w.Name,
		Description:     w.Description,
		RepoURL:         w.RepoURL,
		DefaultRevision: w.DefaultRevision,
		CreatedAt:       w.CreatedAt,
	}
}

func toMetricsResponse(m domain.RunMetrics) metricsResponse {
	extra := m.Extra
	if extra == nil {
		extra = domain.Metadata{}
	}
	return metricsResponse{RunID: m.RunID, PrimaryScore: m.PrimaryScore, Extra: extra, UpdatedAt: m.UpdatedAt}
}

func (api *ledgerAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	user, err := api.identity.Get(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err, "user_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, userResponse{UserID: user.ID, Name: user.Name, Email: user.Email, CreatedAt: user.CreatedAt})
}

func (api *ledgerAPI) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}
	workflows, err := api.catalog.List(r.Context(), limit)
	if err != nil {
		api.writeServiceError(w, r, err, "workflow_not_found")
		return
	}
	out := make([]workflowResponse, 0, len(workflows))
	for _, wf := range workflows {
		out = append(out, toWorkflowResponse(wf))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

type createWorkflowRequest struct {
	WorkflowID      string `json:"workflow_id,omitempty"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	RepoURL         string `json:"repo_url,omitempty"`
	DefaultRevision string `json:"default_revision,omitempty"`
}

func (api *ledgerAPI) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	wf, err := api.catalog.Create(r.Context(), catalog.CreateInput{
		ID:              req.WorkflowID,
		Name:            req.Name,
		Description:     req.Description,
		RepoURL:         req.RepoURL,
		DefaultRevision: req.DefaultRevision,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "workflow_not_found")
		return
	}
	api.writeJSON(w, http.StatusCreated, toWorkflowResponse(wf))
}

func (api *ledgerAPI) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := api.catalog.Get(r.Context(), r.PathValue("workflow_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "workflow_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

func (api *ledgerAPI) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := api.catalog.Delete(r.Context(), r.PathValue("workflow_id")); err != nil {
		api.writeServiceError(w, r, err, "workflow_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRunRequest struct {
	WorkflowID        string          `json:"workflow_id,omitempty"`
	ExternalRunID     string          `json:"external_run_id"`
	ExternalDatasetID string          `json:"external_dataset_id,omitempty"`
	RunName           string          `json:"run_name,omitempty"`
	WorkDir           string          `json:"work_dir"`
	Params            domain.Metadata `json:"params,omitempty"`
	Labels            domain.Metadata `json:"labels,omitempty"`
}

func (api *ledgerAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	run, err := api.runs.CreateRun(r.Context(), runs.CreateInput{
		OwnerUserID:       userID,
		WorkflowID:        req.WorkflowID,
		ExternalRunID:     req.ExternalRunID,
		ExternalDatasetID: req.ExternalDatasetID,
		RunName:           req.RunName,
		WorkDir:           req.WorkDir,
		Params:            req.Params,
		Labels:            req.Labels,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	view, err := api.runs.GetRun(r.Context(), userID, run.ID)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusCreated, toRunResponse(view))
}

func (api *ledgerAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_offset")
		return
	}
	var statuses []string
	for _, raw := range r.URL.Query()["status"] {
		statuses = append(statuses, strings.Split(raw, ",")...)
	}

	page, err := api.runs.ListRuns(r.Context(), userID, runs.ListQuery{
		Search:   r.URL.Query().Get("search"),
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	out := make([]runResponse, 0, len(page.Runs))
	for _, view := range page.Runs {
		out = append(out, toRunResponse(view))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"runs":   out,
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (api *ledgerAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	view, err := api.runs.GetRun(r.Context(), userID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, toRunResponse(view))
}

func (api *ledgerAPI) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	res, err := api.runs.Delete(r.Context(), userID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":               res.RunID,
		"deleted":              true,
		"canceled_on_platform": res.CanceledOnPlatform,
	})
}

type bulkDeleteRequest struct {
	RunIDs []string `json:"run_ids"`
}

func (api *ledgerAPI) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.RunIDs) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "run_ids_required")
		return
	}
	res, err := api.runs.BulkDelete(r.Context(), userID, req.RunIDs)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"deleted": res.Deleted,
		"denied":  res.Denied,
		"failed":  res.Failed,
	})
}

type cancelRequest struct {
	Note string `json:"note,omitempty"`
}

func (api *ledgerAPI) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if _, err := api.runs.Cancel(r.Context(), userID, r.PathValue("run_id"), req.Note); err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeRun(w, r, userID, r.PathValue("run_id"), http.StatusOK)
}

type statusRequest struct {
	Status       string          `json:"status"`
	Note         string          `json:"note,omitempty"`
	Metadata     domain.Metadata `json:"metadata,omitempty"`
	ErrorSummary string          `json:"error_summary,omitempty"`
	At           *time.Time      `json:"at,omitempty"`
}

func (api *ledgerAPI) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	status, err := domain.ParseRunStatus(req.Status)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	upd := runs.StatusUpdate{Status: status, Note: req.Note, Metadata: req.Metadata, ErrorSummary: req.ErrorSummary}
	if req.At != nil {
		upd.At = *req.At
	}
	if _, err := api.runs.ReportStatus(r.Context(), userID, r.PathValue("run_id"), upd); err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeRun(w, r, userID, r.PathValue("run_id"), http.StatusOK)
}

func (api *ledgerAPI) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	events, err := api.runs.ListEvents(r.Context(), userID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{EventID: e.ID, Status: string(e.Status), Note: e.Note, Metadata: e.Metadata, RecordedAt: e.RecordedAt})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type attachRequest struct {
	ObjectID    string          `json:"object_id,omitempty"`
	Bucket      string          `json:"bucket,omitempty"`
	Key         string          `json:"key,omitempty"`
	Version     string          `json:"version,omitempty"`
	SizeBytes   int64           `json:"size_bytes,omitempty"`
	Checksum    string          `json:"checksum,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Type        string          `json:"type"`
	Label       string          `json:"label,omitempty"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

func (api *ledgerAPI) handleAttach(direction domain.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := api.caller(w, r)
		if !ok {
			return
		}
		var req attachRequest
		if err := decodeJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		in := runs.AttachInput{
			ObjectID: req.ObjectID,
			Object: objects.Descriptor{
				Bucket:      req.Bucket,
				Key:         req.Key,
				Version:     req.Version,
				SizeBytes:   req.SizeBytes,
				Checksum:    req.Checksum,
				ContentType: req.ContentType,
			},
			TypeTag:  req.Type,
			Label:    req.Label,
			Metadata: req.Metadata,
		}
		attach := api.runs.AttachInput
		if direction == domain.DirectionOutput {
			attach = api.runs.AttachOutput
		}
		res, err := attach(r.Context(), userID, r.PathValue("run_id"), in)
		if err != nil {
			api.writeServiceError(w, r, err, "run_not_found")
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		api.writeJSON(w, status, map[string]any{
			"direction": string(direction),
			"created":   res.Created,
			"object":    toObjectResponse(res.Object),
		})
	}
}

type discoverRequest struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Type   string `json:"type"`
}

func (api *ledgerAPI) handleDiscoverOutputs(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	if api.lister == nil {
		api.writeError(w, r, http.StatusServiceUnavailable, "object_store_disabled")
		return
	}
	var req discoverRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	created, err := api.runs.AttachOutputPrefix(r.Context(), userID, r.PathValue("run_id"), api.lister, req.Bucket, req.Prefix, req.Type)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func (api *ledgerAPI) handleListProvenance(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	seq, err := api.runs.ListProvenance(r.Context(), userID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	items := make([]provenanceResponse, 0)
	for entry, err := range seq {
		if err != nil {
			api.writeServiceError(w, r, err, "run_not_found")
			return
		}
		items = append(items, provenanceResponse{
			Direction: string(entry.Link.Direction),
			Type:      entry.Link.TypeTag,
			Label:     entry.Link.Label,
			Metadata:  entry.Link.Metadata,
			Object:    toObjectResponse(entry.Object),
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"run_id": r.PathValue("run_id"), "items": items})
}

type metricsRequest struct {
	PrimaryScore *float64        `json:"primary_score"`
	Extra        domain.Metadata `json:"extra,omitempty"`
}

func (api *ledgerAPI) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	var req metricsRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	metrics, err := api.runs.RecordMetricsAs(r.Context(), userID, r.PathValue("run_id"), req.PrimaryScore, req.Extra)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, toMetricsResponse(metrics))
}

func (api *ledgerAPI) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.caller(w, r)
	if !ok {
		return
	}
	metrics, err := api.runs.GetMetrics(r.Context(), userID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err, "metrics_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, toMetricsResponse(metrics))
}

func (api *ledgerAPI) writeRun(w http.ResponseWriter, r *http.Request, userID, runID string, status int) {
	view, err := api.runs.GetRun(r.Context(), userID, runID)
	if err != nil {
		api.writeServiceError(w, r, err, "run_not_found")
		return
	}
	api.writeJSON(w, status, toRunResponse(view))
}

func (api *ledgerAPI) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

// writeServiceError maps the error taxonomy onto HTTP. Access denial is
// reported exactly like a missing resource.
func (api *ledgerAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundCode string) {
	var (
		conflict   *domain.ConflictError
		validation *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, notFoundCode)
	case errors.As(err, &conflict):
		api.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "conflict",
			"field":      conflict.Field,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		api.writeError(w, r, http.StatusConflict, "invalid_transition")
	case errors.As(err, &validation):
		api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "validation_failed",
			"field":      validation.Field,
			"reason":     validation.Reason,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, runs.ErrPlatform):
		api.logger.Warn("platform call failed", "request_id", r.Header.Get("X-Request-Id"), "error", err)
		api.writeError(w, r, http.StatusBadGateway, "platform_error")
	default:
		api.logger.Error("request failed", "request_id", r.Header.Get("X-Request-Id"), "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *ledgerAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *ledgerAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
