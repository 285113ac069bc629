package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SahaayClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SahaayClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetTrustScore returns a user's trust record.
func (h *Handlers) HandleGetTrustScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetTrust(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get trust score: %v", err)), nil
	}

	text, err := formatTrust(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse trust record: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckAccess checks a trust-gated action.
func (h *Handlers) HandleCheckAccess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	action := req.GetString("action", "")
	if action == "" {
		return mcp.NewToolResultError("action is required"), nil
	}

	raw, err := h.client.CheckAccess(ctx, userID, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check access: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse access response: %v", err)), nil
	}

	allowed, _ := m["allowed"].(bool)
	verdict := "DENIED"
	if allowed {
		verdict = "ALLOWED"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Access %s for action %q\n", verdict, action)
	if v, ok := getFloat(m, "score"); ok {
		fmt.Fprintf(&sb, "  Score: %.0f\n", v)
	}
	if v, ok := getFloat(m, "required"); ok {
		fmt.Fprintf(&sb, "  Required: %.0f\n", v)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListProblems lists open postings.
func (h *Handlers) HandleListProblems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListProblems(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list problems: %v", err)), nil
	}

	text, err := formatProblemList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse problems: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandlePostProblem creates a new posting.
func (h *Handlers) HandlePostProblem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	riskLevel := req.GetString("risk_level", "")
	if riskLevel == "" {
		return mcp.NewToolResultError("risk_level is required"), nil
	}
	description := req.GetString("description", "")
	amountINR := int64(req.GetFloat("amount_inr", 0))
	lat := req.GetFloat("lat", 0)
	lng := req.GetFloat("lng", 0)

	raw, err := h.client.PostProblem(ctx, title, description, riskLevel, amountINR, lat, lng)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to post problem: %v", err)), nil
	}

	var resp struct {
		Problem map[string]any `json:"problem"`
		Tier    map[string]any `json:"tier"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Problem == nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Posted %q (%s risk)\n", getString(resp.Problem, "title"), getString(resp.Problem, "riskLevel"))
	fmt.Fprintf(&sb, "  Problem ID: %s\n", getString(resp.Problem, "id"))
	if resp.Tier != nil {
		if v, ok := getFloat(resp.Tier, "minTrustScore"); ok {
			fmt.Fprintf(&sb, "  Visible to helpers with trust score %.0f+\n", v)
		}
		if b, ok := resp.Tier["idExchangeRecommended"].(bool); ok && b {
			sb.WriteString("  ID exchange recommended before starting\n")
		}
		if b, ok := resp.Tier["depositRecommended"].(bool); ok && b {
			sb.WriteString("  Deposit recommended\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleLockEscrow locks payment for a posting.
func (h *Handlers) HandleLockEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID := req.GetString("problem_id", "")
	if problemID == "" {
		return mcp.NewToolResultError("problem_id is required"), nil
	}
	helperID := req.GetString("helper_id", "")
	if helperID == "" {
		return mcp.NewToolResultError("helper_id is required"), nil
	}
	amountINR := int64(req.GetFloat("amount_inr", 0))
	if amountINR <= 0 {
		return mcp.NewToolResultError("amount_inr must be a positive rupee amount"), nil
	}

	raw, err := h.client.LockEscrow(ctx, problemID, helperID, amountINR)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Escrow lock failed: %v", err)), nil
	}

	var tx map[string]any
	if err := json.Unmarshal(raw, &tx); err != nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Locked ₹%d in escrow for posting %s\n"+
			"Escrow ID: %s\n"+
			"Helper: %s\n"+
			"Auto-releases to the helper at %s unless you release or dispute first.",
		amountINR, problemID, getString(tx, "id"), helperID, getString(tx, "lockExpiryAt"))), nil
}

// HandleReleaseEscrow releases payment to the helper.
func (h *Handlers) HandleReleaseEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID := req.GetString("problem_id", "")
	if problemID == "" {
		return mcp.NewToolResultError("problem_id is required"), nil
	}

	raw, err := h.client.ReleaseEscrow(ctx, problemID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Release failed: %v", err)), nil
	}

	var tx map[string]any
	if err := json.Unmarshal(raw, &tx); err != nil {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Payment released to %s for posting %s.\n"+
			"The posting is closed and the helper's trust score is credited.",
		getString(tx, "helperId"), problemID)), nil
}

// HandleDisputeEscrow freezes a locked escrow.
func (h *Handlers) HandleDisputeEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID := req.GetString("problem_id", "")
	if problemID == "" {
		return mcp.NewToolResultError("problem_id is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	_, err := h.client.DisputeEscrow(ctx, problemID, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Dispute failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow for posting %s disputed.\n"+
			"Reason: %s\n"+
			"Funds are frozen pending review; auto-release is cancelled.",
		problemID, reason)), nil
}

// HandleListNotifications lists the acting user's notifications.
func (h *Handlers) HandleListNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	unreadOnly := req.GetBool("unread_only", false)
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListNotifications(ctx, unreadOnly, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list notifications: %v", err)), nil
	}

	text, err := formatNotificationList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse notifications: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatTrust(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Trust Record:\n")
	if v := getString(m, "userId"); v != "" {
		fmt.Fprintf(&sb, "  User: %s\n", v)
	}
	if v, ok := getFloat(m, "score"); ok {
		fmt.Fprintf(&sb, "  Score: %.0f / 100\n", v)
	}
	if v := getString(m, "badge"); v != "" {
		fmt.Fprintf(&sb, "  Badge: %s\n", v)
	}
	return sb.String(), nil
}

func formatProblemList(raw json.RawMessage) (string, error) {
	var resp struct {
		Problems []map[string]any `json:"problems"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected problems response format")
	}
	if len(resp.Problems) == 0 {
		return "No open postings visible at your trust tier.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d open posting(s):\n\n", len(resp.Problems))
	for i, p := range resp.Problems {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, getString(p, "title"))
		fmt.Fprintf(&sb, "   ID: %s | Risk: %s", getString(p, "id"), getString(p, "riskLevel"))
		if v, ok := getFloat(p, "amountInr"); ok && v > 0 {
			fmt.Fprintf(&sb, " | ₹%.0f", v)
		}
		sb.WriteString("\n")
		if desc := getString(p, "description"); desc != "" {
			fmt.Fprintf(&sb, "   %s\n", desc)
		}
		if i < len(resp.Problems)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatNotificationList(raw json.RawMessage) (string, error) {
	var resp struct {
		Notifications []map[string]any `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected notifications response format")
	}
	if len(resp.Notifications) == 0 {
		return "No notifications.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d notification(s):\n\n", len(resp.Notifications))
	for i, n := range resp.Notifications {
		marker := " "
		if read, ok := n["read"].(bool); ok && !read {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %d. [%s] %s\n", marker, i+1, getString(n, "priority"), getString(n, "title"))
		if msg := getString(n, "message"); msg != "" {
			fmt.Fprintf(&sb, "     %s\n", msg)
		}
	}
	sb.WriteString("\n(* = unread)")
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
