package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Sahaay platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	UserID string // Acting user, e.g. "usr_..."
}

// SahaayClient is a pure HTTP client for the Sahaay platform API.
type SahaayClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSahaayClient creates a new client for the Sahaay platform.
func NewSahaayClient(cfg Config) *SahaayClient {
	return &SahaayClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *SahaayClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-User-ID", c.cfg.UserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetTrust returns the trust record for a user.
func (c *SahaayClient) GetTrust(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+userID+"/trust", nil, nil)
}

// CheckAccess checks whether a user's trust score clears an action gate.
func (c *SahaayClient) CheckAccess(ctx context.Context, userID, action string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+userID+"/access/"+action, nil, nil)
}

// ListProblems lists open postings visible to the acting user.
func (c *SahaayClient) ListProblems(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/problems", q, nil)
}

// PostProblem creates a new help posting.
func (c *SahaayClient) PostProblem(ctx context.Context, title, description, riskLevel string, amountINR int64, lat, lng float64) (json.RawMessage, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"riskLevel":   riskLevel,
		"amountInr":   amountINR,
		"lat":         lat,
		"lng":         lng,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/problems", nil, body)
}

// LockEscrow locks payment for a posting.
func (c *SahaayClient) LockEscrow(ctx context.Context, problemID, helperID string, amountINR int64) (json.RawMessage, error) {
	body := map[string]any{
		"helperId":  helperID,
		"amountInr": amountINR,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/problems/"+problemID+"/escrow", nil, body)
}

// ReleaseEscrow releases locked payment to the helper.
func (c *SahaayClient) ReleaseEscrow(ctx context.Context, problemID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/problems/"+problemID+"/escrow/release", nil, nil)
}

// DisputeEscrow freezes a locked escrow pending review.
func (c *SahaayClient) DisputeEscrow(ctx context.Context, problemID, reason string) (json.RawMessage, error) {
	body := map[string]string{
		"reason": reason,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/problems/"+problemID+"/escrow/dispute", nil, body)
}

// ListNotifications returns the acting user's notifications.
func (c *SahaayClient) ListNotifications(ctx context.Context, unreadOnly bool, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/users/"+c.cfg.UserID+"/notifications", q, nil)
}
