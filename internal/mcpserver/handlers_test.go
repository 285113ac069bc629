package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		UserID: "usr_client",
	}
	client := NewSahaayClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_UserHeader(t *testing.T) {
	var gotUser string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_abc"})
	_, err := client.GetTrust(context.Background(), "usr_other")
	require.NoError(t, err)
	assert.Equal(t, "usr_abc", gotUser)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "precondition_failed",
			"message": "only the client may release this payment",
		})
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_x"})
	_, err := client.ReleaseEscrow(context.Background(), "prb_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "only the client may release this payment")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_x"})
	_, err := client.GetTrust(context.Background(), "usr_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewSahaayClient(Config{APIURL: "http://127.0.0.1:1", UserID: "usr_x"})
	_, err := client.GetTrust(context.Background(), "usr_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	_, err := client.GetTrust(ctx, "usr_x")
	require.Error(t, err)
}

func TestClient_ListProblems_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/problems", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"problems":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_x"})
	_, err := client.ListProblems(context.Background(), 5)
	require.NoError(t, err)
}

func TestClient_LockEscrow_Body(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/problems/prb_1/escrow", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "usr_helper", body["helperId"])
		assert.Equal(t, float64(500), body["amountInr"])
		_, _ = w.Write([]byte(`{"id":"esc_1"}`))
	}))
	defer ts.Close()

	client := NewSahaayClient(Config{APIURL: ts.URL, UserID: "usr_x"})
	_, err := client.LockEscrow(context.Background(), "prb_1", "usr_helper", 500)
	require.NoError(t, err)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleGetTrustScore(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/usr_h/trust", r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":"usr_h","score":72,"badge":"trusted"}`))
	}))
	defer cleanup()

	result, err := h.HandleGetTrustScore(context.Background(), makeRequest(map[string]any{
		"user_id": "usr_h",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "72")
	assert.Contains(t, text, "trusted")
}

func TestHandleGetTrustScore_MissingUserID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	result, err := h.HandleGetTrustScore(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCheckAccess(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/usr_h/access/resource_rent", r.URL.Path)
		_, _ = w.Write([]byte(`{"allowed":false,"score":55,"required":70}`))
	}))
	defer cleanup()

	result, err := h.HandleCheckAccess(context.Background(), makeRequest(map[string]any{
		"user_id": "usr_h",
		"action":  "resource_rent",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "DENIED")
	assert.Contains(t, text, "Required: 70")
}

func TestHandleListProblems(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"problems":[
			{"id":"prb_1","title":"Fix leaking tap","riskLevel":"low","amountInr":200},
			{"id":"prb_2","title":"Watch my shop","riskLevel":"medium","amountInr":500}
		],"count":2}`))
	}))
	defer cleanup()

	result, err := h.HandleListProblems(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Fix leaking tap")
	assert.Contains(t, text, "Watch my shop")
	assert.Contains(t, text, "₹500")
}

func TestHandleListProblems_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"problems":[],"count":0}`))
	}))
	defer cleanup()

	result, err := h.HandleListProblems(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No open postings")
}

func TestHandlePostProblem(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "high", body["riskLevel"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"problem":{"id":"prb_9","title":"Fix wiring inside house","riskLevel":"high"},
			"tier":{"minTrustScore":70,"idExchangeRecommended":true,"depositRecommended":true}
		}`))
	}))
	defer cleanup()

	result, err := h.HandlePostProblem(context.Background(), makeRequest(map[string]any{
		"title":      "Fix wiring inside house",
		"risk_level": "high",
		"amount_inr": 800,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "prb_9")
	assert.Contains(t, text, "70")
	assert.Contains(t, text, "ID exchange")
	assert.Contains(t, text, "Deposit")
}

func TestHandlePostProblem_TrustGateRejection(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "precondition_failed",
			"message": "trust score 50 is below the 70 required for high risk postings",
		})
	}))
	defer cleanup()

	result, err := h.HandlePostProblem(context.Background(), makeRequest(map[string]any{
		"title":      "Dangerous task",
		"risk_level": "high",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "below the 70 required")
}

func TestHandleLockEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"esc_1","problemId":"prb_1","helperId":"usr_helper","amountInr":500,"status":"locked","lockExpiryAt":"2026-05-11T10:00:00Z"}`))
	}))
	defer cleanup()

	result, err := h.HandleLockEscrow(context.Background(), makeRequest(map[string]any{
		"problem_id": "prb_1",
		"helper_id":  "usr_helper",
		"amount_inr": 500,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "₹500")
	assert.Contains(t, text, "esc_1")
	assert.Contains(t, text, "2026-05-11T10:00:00Z")
}

func TestHandleLockEscrow_InvalidAmount(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	result, err := h.HandleLockEscrow(context.Background(), makeRequest(map[string]any{
		"problem_id": "prb_1",
		"helper_id":  "usr_helper",
		"amount_inr": 0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleReleaseEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/problems/prb_1/escrow/release", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"esc_1","helperId":"usr_helper","status":"released"}`))
	}))
	defer cleanup()

	result, err := h.HandleReleaseEscrow(context.Background(), makeRequest(map[string]any{
		"problem_id": "prb_1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "usr_helper")
}

func TestHandleDisputeEscrow(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/problems/prb_1/escrow/dispute", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "helper never arrived", body["reason"])
		_, _ = w.Write([]byte(`{"id":"esc_1","status":"disputed"}`))
	}))
	defer cleanup()

	result, err := h.HandleDisputeEscrow(context.Background(), makeRequest(map[string]any{
		"problem_id": "prb_1",
		"reason":     "helper never arrived",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "disputed")
	assert.Contains(t, text, "helper never arrived")
}

func TestHandleDisputeEscrow_MissingReason(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	result, err := h.HandleDisputeEscrow(context.Background(), makeRequest(map[string]any{
		"problem_id": "prb_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListNotifications(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/usr_client/notifications", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("unread"))
		_, _ = w.Write([]byte(`{"notifications":[
			{"id":"ntf_1","title":"Payment released","message":"₹500 paid out","priority":"high","read":false}
		],"count":1}`))
	}))
	defer cleanup()

	result, err := h.HandleListNotifications(context.Background(), makeRequest(map[string]any{
		"unread_only": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Payment released")
	assert.Contains(t, text, "* 1.")
}
