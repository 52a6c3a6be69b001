package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/planforge/planforge/internal/domain/batch"
	"github.com/planforge/planforge/internal/domain/phase"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPlansTool(),
		s.getStatisticsTool(),
		s.getPhaseTreeTool(),
		s.addPhaseTool(),
		s.updatePhaseStatusTool(),
		s.getNextActionsTool(),
		s.executeBatchTool(),
		s.getEntityHistoryTool(),
		s.diffEntityVersionsTool(),
	)
}

func (s *Server) listPlansTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_plans",
		mcplib.WithDescription("List all planning documents"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPlans,
	}
}

func (s *Server) getStatisticsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_statistics",
		mcplib.WithDescription("Get aggregate entity counts and completion percentage for a plan"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID to summarize"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetStatistics,
	}
}

func (s *Server) getPhaseTreeTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_phase_tree",
		mcplib.WithDescription("Get the hierarchical phase tree of a plan"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID whose tree to fetch"),
		),
		mcplib.WithString("root_id",
			mcplib.Description("Optional phase ID to use as the subtree root"),
		),
		mcplib.WithBoolean("include_completed",
			mcplib.Description("Include completed phases and their subtrees (default false)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetPhaseTree,
	}
}

func (s *Server) addPhaseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_phase",
		mcplib.WithDescription("Add a phase to a plan, optionally under a parent phase"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID to add the phase to"),
		),
		mcplib.WithString("title",
			mcplib.Required(),
			mcplib.Description("Phase title"),
		),
		mcplib.WithString("description",
			mcplib.Description("Phase description"),
		),
		mcplib.WithString("parent_id",
			mcplib.Description("Parent phase ID; omit for a root phase"),
		),
		mcplib.WithNumber("order",
			mcplib.Description("1-based sibling position; omit to append after the last sibling"),
		),
		mcplib.WithNumber("estimated_hours",
			mcplib.Description("Estimated effort in hours"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleAddPhase,
	}
}

func (s *Server) updatePhaseStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("update_phase_status",
		mcplib.WithDescription("Transition a phase to a new status, optionally with progress and notes"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID containing the phase"),
		),
		mcplib.WithString("phase_id",
			mcplib.Required(),
			mcplib.Description("The phase ID to update"),
		),
		mcplib.WithString("status",
			mcplib.Required(),
			mcplib.Description("New status: planned, in_progress, completed, or blocked"),
		),
		mcplib.WithNumber("progress",
			mcplib.Description("Progress percentage 0-100"),
		),
		mcplib.WithString("notes",
			mcplib.Description("Annotation text; required when blocking a phase"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleUpdatePhaseStatus,
	}
}

func (s *Server) getNextActionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_next_actions",
		mcplib.WithDescription("Get prioritized suggested next actions for a plan's phases"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID to analyze"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of actions to return (default 5)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetNextActions,
	}
}

func (s *Server) executeBatchTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("execute_batch",
		mcplib.WithDescription("Execute a batch of entity operations against a plan, with optional atomic rollback and $temp-id cross-references"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID to run the batch against"),
		),
		mcplib.WithString("operations",
			mcplib.Required(),
			mcplib.Description(`JSON array of operations, e.g. [{"entity_type":"phase","payload":{"title":"Design"},"temp_id":"$1"}]`),
		),
		mcplib.WithBoolean("atomic",
			mcplib.Description("Roll back all operations if any fails (default false)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleExecuteBatch,
	}
}

func (s *Server) getEntityHistoryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_entity_history",
		mcplib.WithDescription("Get the version history of an entity, newest first"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID containing the entity"),
		),
		mcplib.WithString("entity_id",
			mcplib.Required(),
			mcplib.Description("The entity ID whose history to fetch"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of snapshots to return (default 50)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetEntityHistory,
	}
}

func (s *Server) diffEntityVersionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("diff_entity_versions",
		mcplib.WithDescription("Compute a field-level diff between two versions of an entity"),
		mcplib.WithString("plan_id",
			mcplib.Required(),
			mcplib.Description("The plan ID containing the entity"),
		),
		mcplib.WithString("entity_id",
			mcplib.Required(),
			mcplib.Description("The entity ID to diff"),
		),
		mcplib.WithNumber("from_version",
			mcplib.Required(),
			mcplib.Description("Older version number"),
		),
		mcplib.WithNumber("to_version",
			mcplib.Required(),
			mcplib.Description("Newer version number; may be the current one"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDiffEntityVersions,
	}
}

func (s *Server) handleListPlans(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Plans == nil {
		return mcplib.NewToolResultError("plan service not configured"), nil
	}
	plans, err := s.deps.Plans.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list plans", err), nil
	}
	data, err := json.Marshal(plans)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal plans", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetStatistics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("statistics service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	st, err := s.deps.Stats.Get(ctx, planID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get statistics for plan %s", planID), err,
		), nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal statistics", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetPhaseTree(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Phases == nil {
		return mcplib.NewToolResultError("phase service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	rootID, _ := args["root_id"].(string)
	includeCompleted, _ := args["include_completed"].(bool)

	tree, err := s.deps.Phases.Tree(ctx, planID, rootID, includeCompleted)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get phase tree for plan %s", planID), err,
		), nil
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal phase tree", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleAddPhase(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Phases == nil {
		return mcplib.NewToolResultError("phase service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	title, ok := args["title"].(string)
	if !ok || title == "" {
		return mcplib.NewToolResultError("title is required"), nil
	}
	create := phase.CreateRequest{Title: title}
	create.Description, _ = args["description"].(string)
	create.ParentID, _ = args["parent_id"].(string)
	if v, ok := args["order"].(float64); ok {
		order := int(v)
		create.Order = &order
	}
	if v, ok := args["estimated_hours"].(float64); ok {
		create.EstimatedHours = v
	}

	p, err := s.deps.Phases.Add(ctx, planID, create)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to add phase to plan %s", planID), err,
		), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal phase", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleUpdatePhaseStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Phases == nil {
		return mcplib.NewToolResultError("phase service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	phaseID, ok := args["phase_id"].(string)
	if !ok || phaseID == "" {
		return mcplib.NewToolResultError("phase_id is required"), nil
	}
	status, ok := args["status"].(string)
	if !ok || status == "" {
		return mcplib.NewToolResultError("status is required"), nil
	}
	update := phase.StatusUpdateRequest{Status: phase.Status(status)}
	if v, ok := args["progress"].(float64); ok {
		progress := int(v)
		update.Progress = &progress
	}
	update.Notes, _ = args["notes"].(string)

	result, err := s.deps.Phases.UpdateStatus(ctx, planID, phaseID, update)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to update status of phase %s", phaseID), err,
		), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal status result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetNextActions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Phases == nil {
		return mcplib.NewToolResultError("phase service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	limit := 5
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	actions, err := s.deps.Phases.NextActions(ctx, planID, limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get next actions for plan %s", planID), err,
		), nil
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal actions", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleExecuteBatch(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Batches == nil {
		return mcplib.NewToolResultError("batch service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	opsJSON, ok := args["operations"].(string)
	if !ok || opsJSON == "" {
		return mcplib.NewToolResultError("operations is required"), nil
	}
	var execute batch.ExecuteRequest
	if err := json.Unmarshal([]byte(opsJSON), &execute.Operations); err != nil {
		return mcplib.NewToolResultErrorFromErr("operations is not a valid JSON array", err), nil
	}
	execute.Atomic, _ = args["atomic"].(bool)

	resp, err := s.deps.Batches.Execute(ctx, planID, execute)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("batch against plan %s failed", planID), err,
		), nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal batch response", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetEntityHistory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Versions == nil {
		return mcplib.NewToolResultError("version service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	entityID, ok := args["entity_id"].(string)
	if !ok || entityID == "" {
		return mcplib.NewToolResultError("entity_id is required"), nil
	}
	limit := 50
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	history, err := s.deps.Versions.History(ctx, planID, entityID, limit, 0)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get history of entity %s", entityID), err,
		), nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal history", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleDiffEntityVersions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Versions == nil {
		return mcplib.NewToolResultError("version service not configured"), nil
	}
	args := req.GetArguments()
	planID, ok := args["plan_id"].(string)
	if !ok || planID == "" {
		return mcplib.NewToolResultError("plan_id is required"), nil
	}
	entityID, ok := args["entity_id"].(string)
	if !ok || entityID == "" {
		return mcplib.NewToolResultError("entity_id is required"), nil
	}
	fromVersion, ok := args["from_version"].(float64)
	if !ok || fromVersion <= 0 {
		return mcplib.NewToolResultError("from_version is required"), nil
	}
	toVersion, ok := args["to_version"].(float64)
	if !ok || toVersion <= 0 {
		return mcplib.NewToolResultError("to_version is required"), nil
	}

	changes, err := s.deps.Versions.Diff(ctx, planID, entityID, int(fromVersion), int(toVersion))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to diff entity %s", entityID), err,
		), nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal diff", err), nil
	}
	return toolResultJSON(string(data)), nil
}
