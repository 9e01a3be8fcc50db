package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoResult is returned when a status response carries no "result" object
var ErrNoResult = errors.New("upstream response has no result")

// StatusError is a non-2xx answer from the upstream API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the report provider's REST API
type Client struct {
	baseURL       string
	timeout       time.Duration
	submitTimeout time.Duration
	httpClient    *http.Client
}

// NewClient builds a client whose requests carry "Authorization: Bearer <apiKey>".
// timeout bounds status lookups, submitTimeout bounds file uploads.
func NewClient(baseURL, apiKey string, timeout, submitTimeout time.Duration) *Client {
	httpClient := &http.Client{}
	if apiKey != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	return &Client{
		baseURL:       baseURL,
		timeout:       timeout,
		submitTimeout: submitTimeout,
		httpClient:    httpClient,
	}
}

// SubmitResponse is the upstream answer to a file submission, passed back to callers verbatim
type SubmitResponse struct {
	StatusCode int
	Body       map[string]interface{}
}

// Accepted reports whether the upstream took the submission
func (r *SubmitResponse) Accepted() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && r.ReportID() != ""
}

// ReportID finds the assigned report ID at the top level or under "result"/"data"
func (r *SubmitResponse) ReportID() string {
	if id := stringField(r.Body, "report_id"); id != "" {
		return id
	}
	for _, key := range []string{"result", "data"} {
		if nested, ok := r.Body[key].(map[string]interface{}); ok {
			if id := stringField(nested, "report_id"); id != "" {
				return id
			}
		}
	}
	return ""
}

// Result returns the nested report fields if present, else the whole body
func (r *SubmitResponse) Result() map[string]interface{} {
	for _, key := range []string{"result", "data"} {
		if nested, ok := r.Body[key].(map[string]interface{}); ok {
			return nested
		}
	}
	return r.Body
}

// SubmitFile forwards an already-encoded multipart body as-is, bounded by the submit timeout
func (c *Client) SubmitFile(ctx context.Context, body []byte, contentType string) (*SubmitResponse, error) {
	if c.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/submit-file", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit file: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read submit response: %w", err)
	}

	out := &SubmitResponse{StatusCode: resp.StatusCode, Body: map[string]interface{}{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(raw)}
		}
	}
	return out, nil
}

// GetStatus fetches the current state of one report, bounded by the client timeout
func (c *Client) GetStatus(ctx context.Context, reportID string) (map[string]interface{}, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/api/submission-status/" + url.PathEscape(reportID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status for %s: %w", reportID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(raw)}
	}

	var envelope struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if envelope.Result == nil {
		return nil, ErrNoResult
	}
	return envelope.Result, nil
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func truncate(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
