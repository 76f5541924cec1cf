// Package tracker is the issue-tracker REST client used by the notification
// dispatcher. All calls retry with bounded exponential backoff.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sentinelai/sentinel/internal/logging"
)

const maxAttempts = 3

// Config holds tracker connection settings.
type Config struct {
	BaseURL    string
	ProjectKey string
	UserEmail  string
	APIToken   string
	IssueType  string // preferred issue type name, matched case-insensitively
}

// priorityBySeverity maps scan severity to tracker priority names.
var priorityBySeverity = map[string]string{
	"Critical": "Highest",
	"High":     "High",
}

// Client talks to the tracker's REST v2 API.
type Client struct {
	cfg           Config
	client        *http.Client
	retryInterval time.Duration

	mu        sync.Mutex
	issueType map[string]string // cached {"id": ...} or {"name": ...}
}

// NewClient creates a tracker client.
func NewClient(cfg Config) *Client {
	if cfg.IssueType == "" {
		cfg.IssueType = "Bug"
	}
	return &Client{
		cfg:           cfg,
		client:        &http.Client{Timeout: 10 * time.Second},
		retryInterval: 2 * time.Second,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.APIToken != "" && c.cfg.UserEmail != ""
}

// CreateIssue files one issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, title, description, severity string) (string, error) {
	priority, ok := priorityBySeverity[severity]
	if !ok {
		priority = "High"
	}

	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": c.cfg.ProjectKey},
			"summary":     title,
			"description": description,
			"issuetype":   c.discoverIssueType(ctx),
			"priority":    map[string]string{"name": priority},
		},
	}

	body, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if resp.Key == "" {
		return "", fmt.Errorf("tracker returned no issue key")
	}
	logging.Op().Info("created tracker issue", "key", resp.Key)
	return resp.Key, nil
}

// AddComment appends a comment to an existing issue.
func (c *Client) AddComment(ctx context.Context, issueKey, text string) error {
	_, err := c.do(ctx, http.MethodPost,
		"/rest/api/2/issue/"+issueKey+"/comment",
		map[string]string{"body": text})
	if err != nil {
		return err
	}
	logging.Op().Info("added tracker comment", "key", issueKey)
	return nil
}

// Status is the connectivity report for the tracker surface.
type Status struct {
	Status  string `json:"status"` // not_configured | connected | error
	User    string `json:"user,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckConnectivity verifies credentials against the tracker.
func (c *Client) CheckConnectivity(ctx context.Context) Status {
	if !c.Configured() {
		return Status{Status: "not_configured", Message: "tracker credentials not set"}
	}
	body, err := c.do(ctx, http.MethodGet, "/rest/api/2/myself", nil)
	if err != nil {
		return Status{Status: "error", Message: err.Error()}
	}
	var me struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	}
	_ = json.Unmarshal(body, &me)
	return Status{Status: "connected", User: me.DisplayName, Email: me.EmailAddress}
}

// discoverIssueType resolves the issue type reference once per process:
// prefer the configured name, else the first non-subtask type, else the
// first type; on any failure fall back to the literal name "Task".
func (c *Client) discoverIssueType(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.issueType != nil {
		return c.issueType
	}

	body, err := c.do(ctx, http.MethodGet, "/rest/api/2/project/"+c.cfg.ProjectKey, nil)
	if err != nil {
		logging.Op().Error("issue type discovery failed, falling back to Task", "error", err)
		c.issueType = map[string]string{"name": "Task"}
		return c.issueType
	}

	var project struct {
		IssueTypes []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Subtask bool   `json:"subtask"`
		} `json:"issueTypes"`
	}
	if err := json.Unmarshal(body, &project); err != nil || len(project.IssueTypes) == 0 {
		logging.Op().Warn("no issue types found for project, falling back to Task")
		c.issueType = map[string]string{"name": "Task"}
		return c.issueType
	}

	for _, it := range project.IssueTypes {
		if strings.EqualFold(it.Name, c.cfg.IssueType) {
			c.issueType = map[string]string{"id": it.ID}
			logging.Op().Info("using configured issue type", "name", it.Name, "id", it.ID)
			return c.issueType
		}
	}
	for _, it := range project.IssueTypes {
		if !it.Subtask {
			c.issueType = map[string]string{"id": it.ID}
			logging.Op().Info("configured issue type not found, using first standard type",
				"name", it.Name, "id", it.ID)
			return c.issueType
		}
	}
	first := project.IssueTypes[0]
	c.issueType = map[string]string{"id": first.ID}
	logging.Op().Info("using first available issue type", "name", first.Name, "id", first.ID)
	return c.issueType
}

// do performs one tracker request with up to three attempts (2s, 4s delays).
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		var reqBody io.Reader
		if encoded != nil {
			reqBody = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.SetBasicAuth(c.cfg.UserEmail, c.cfg.APIToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			logging.Op().Warn("tracker request failed",
				"method", method, "path", path, "attempt", attempt, "error", err)
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			err := fmt.Errorf("tracker API status %d: %s", resp.StatusCode, truncate(string(body), 300))
			logging.Op().Warn("tracker request rejected",
				"method", method, "path", path, "attempt", attempt, "status", resp.StatusCode)
			return nil, err
		}
		return body, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("tracker request failed after %d attempts: %w", maxAttempts, err)
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
