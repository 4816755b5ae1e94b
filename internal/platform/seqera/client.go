// Package seqera talks to the Seqera Platform workflow API: it describes,
// cancels and deletes workflow executions by their platform id.
package seqera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned by Describe when the platform has no such workflow.
var ErrNotFound = errors.New("seqera: workflow not found")

// APIError is a non-2xx platform response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("seqera %s: %d %s", e.Op, e.StatusCode, body)
}

// Workflow is the subset of a platform workflow the ledger consumes.
type Workflow struct {
	ID           string
	RunName      string
	Status       string
	SubmittedAt  *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

type Client struct {
	http        *resty.Client
	workspaceID string
}

// New builds a client authenticating every request with the static access
// token as an OAuth2 bearer token.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)

	rc := resty.NewWithClient(httpClient).
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		})

	return &Client{http: rc, workspaceID: cfg.WorkspaceID}, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if c.workspaceID != "" {
		req.SetQueryParam("workspaceId", c.workspaceID)
	}
	return req
}

func workflowPath(id string, suffix ...string) string {
	path := "/workflow/" + url.PathEscape(strings.TrimSpace(id))
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}

// Describe fetches the current state of a workflow.
func (c *Client) Describe(ctx context.Context, workflowID string) (Workflow, error) {
	resp, err := c.request(ctx).Get(workflowPath(workflowID))
	if err != nil {
		return Workflow{}, fmt.Errorf("seqera describe %s: %w", workflowID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Workflow{}, ErrNotFound
	}
	if resp.IsError() {
		return Workflow{}, &APIError{Op: "describe", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return parseWorkflow(resp.Body())
}

// Cancel stops a running workflow. Older platform versions only expose the
// kill endpoint, so it is tried when cancel is rejected.
func (c *Client) Cancel(ctx context.Context, workflowID string) error {
	var last error
	for _, action := range []string{"cancel", "kill"} {
		resp, err := c.request(ctx).Post(workflowPath(workflowID, action))
		if err != nil {
			return fmt.Errorf("seqera %s %s: %w", action, workflowID, err)
		}
		if !resp.IsError() {
			return nil
		}
		last = &APIError{Op: action, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return last
}

// Delete removes the workflow record. A missing workflow counts as deleted.
func (c *Client) Delete(ctx context.Context, workflowID string) error {
	resp, err := c.request(ctx).Delete(workflowPath(workflowID))
	if err != nil {
		return fmt.Errorf("seqera delete %s: %w", workflowID, err)
	}
	if resp.StatusCode() == http.StatusNotFound || !resp.IsError() {
		return nil
	}
	return &APIError{Op: "delete", StatusCode: resp.StatusCode(), Body: resp.String()}
}

type workflowPayload struct {
	ID           string `json:"id"`
	RunName      string `json:"runName"`
	Status       string `json:"status"`
	Submit       string `json:"submit"`
	DateCreated  string `json:"dateCreated"`
	Start        string `json:"start"`
	Complete     string `json:"complete"`
	ErrorMessage string `json:"errorMessage"`
	ErrorReport  string `json:"errorReport"`
}

// parseWorkflow accepts both the describe envelope {"workflow": {...}} and a
// bare workflow object.
func parseWorkflow(body []byte) (Workflow, error) {
	var envelope struct {
		Workflow *workflowPayload `json:"workflow"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Workflow{}, fmt.Errorf("seqera describe: decode: %w", err)
	}
	payload := envelope.Workflow
	if payload == nil {
		payload = &workflowPayload{}
		if err := json.Unmarshal(body, payload); err != nil {
			return Workflow{}, fmt.Errorf("seqera describe: decode: %w", err)
		}
	}

	submitted := payload.Submit
	if submitted == "" {
		submitted = payload.DateCreated
	}
	message := payload.ErrorMessage
	if message == "" {
		message = payload.ErrorReport
	}
	return Workflow{
		ID:           payload.ID,
		RunName:      payload.RunName,
		Status:       strings.ToUpper(strings.TrimSpace(payload.Status)),
		SubmittedAt:  parseTime(submitted),
		StartedAt:    parseTime(payload.Start),
		CompletedAt:  parseTime(payload.Complete),
		ErrorMessage: strings.TrimSpace(message),
	}, nil
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
