package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Sahaay MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetTrustScore = mcp.NewTool("get_trust_score",
	mcp.WithDescription(
		"Get a user's trust score and badge on Sahaay. "+
			"Scores run 0-100 (everyone starts at 50). Badges: restricted (<40), neutral (40-69), trusted (70+)."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's id (e.g. 'usr_...')")),
)

var ToolCheckAccess = mcp.NewTool("check_access",
	mcp.WithDescription(
		"Check whether a user's trust score clears the gate for a marketplace action. "+
			"Actions: view_emergency (40+), time_access (50+), resource_rent (70+), high_risk_post (70+)."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user's id")),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("The gated action to check"),
		mcp.Enum("view_emergency", "time_access", "resource_rent", "high_risk_post")),
)

var ToolListProblems = mcp.NewTool("list_problems",
	mcp.WithDescription(
		"Browse open help postings visible to you. Postings above your trust tier are hidden. "+
			"Shows titles, risk levels, and offered amounts in rupees."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of postings to return (default 20)")),
)

var ToolPostProblem = mcp.NewTool("post_problem",
	mcp.WithDescription(
		"Post a new help request on Sahaay. High-risk postings (entering homes, childcare) "+
			"require a 70+ trust score and recommend ID exchange plus a deposit."),
	mcp.WithString("title",
		mcp.Required(),
		mcp.Description("Short title of the problem")),
	mcp.WithString("description",
		mcp.Description("Longer description of what help is needed")),
	mcp.WithString("risk_level",
		mcp.Required(),
		mcp.Description("Risk tier of the task"),
		mcp.Enum("low", "medium", "high")),
	mcp.WithNumber("amount_inr",
		mcp.Description("Offered payment in rupees")),
	mcp.WithNumber("lat",
		mcp.Description("Latitude of the task location")),
	mcp.WithNumber("lng",
		mcp.Description("Longitude of the task location")),
)

var ToolLockEscrow = mcp.NewTool("lock_escrow",
	mcp.WithDescription(
		"Lock payment in escrow for your posting once a helper accepts. "+
			"Funds stay locked until you release them, a dispute freezes them, "+
			"or the 24-hour window expires and they auto-release to the helper."),
	mcp.WithString("problem_id",
		mcp.Required(),
		mcp.Description("The posting to lock payment for")),
	mcp.WithString("helper_id",
		mcp.Required(),
		mcp.Description("The helper taking the task")),
	mcp.WithNumber("amount_inr",
		mcp.Required(),
		mcp.Description("Amount to lock in rupees")),
)

var ToolReleaseEscrow = mcp.NewTool("release_escrow",
	mcp.WithDescription(
		"Release locked payment to the helper after the task is done. "+
			"Only the client who locked the escrow can release it. "+
			"Releasing closes the posting and credits the helper's trust score."),
	mcp.WithString("problem_id",
		mcp.Required(),
		mcp.Description("The posting whose escrow to release")),
)

var ToolDisputeEscrow = mcp.NewTool("dispute_escrow",
	mcp.WithDescription(
		"Dispute a locked escrow and freeze the funds pending review. "+
			"Use this when the task was not done or went wrong. Either party can dispute."),
	mcp.WithString("problem_id",
		mcp.Required(),
		mcp.Description("The posting whose escrow to dispute")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Explanation of what went wrong")),
)

var ToolListNotifications = mcp.NewTool("list_notifications",
	mcp.WithDescription(
		"List your Sahaay notifications (escrow updates, trust changes, fraud alerts)."),
	mcp.WithBoolean("unread_only",
		mcp.Description("Only return unread notifications")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number to return (default 20)")),
)
