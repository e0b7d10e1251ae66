// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes meal logging tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/pipeline"
)

// Service is the meal pipeline exposed as tools.
type Service interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Analysis, error)
	Confirm(ctx context.Context, req pipeline.ConfirmRequest) (*pipeline.Analysis, error)
	UndoLast(ctx context.Context, userID string) (*pipeline.Undo, error)
	Budget(ctx context.Context, userID string, at time.Time) models.EnergyBudget
	ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error)
}

const contractURI = "macrolog://confirm-items"

// Server wraps the MCP server with meal tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all meal tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Macrolog",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("analyze_meal",
		mcp.WithDescription("Resolve the calories and macros of a free-text meal description. "+
			"Returns items, totals, confidence, the routing decision (autosave, clarification or verify), "+
			"clarification questions and the remaining daily budget. "+
			"With auto_log the meal is saved when it routes to autosave."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User the meal belongs to")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Meal description, e.g. \"2 eggs, toast and a banana\"")),
		mcp.WithBoolean("auto_log", mcp.Description("Save the meal when confidence allows it")),
		mcp.WithString("meal_slot", mcp.Description("breakfast, lunch, dinner or snack; inferred when empty")),
	), s.analyzeMeal)

	s.mcp.AddTool(mcp.NewTool("confirm_meal",
		mcp.WithDescription("Log a reviewed list of items. Read the items format first via "+
			"the get_confirm_contract tool or the "+contractURI+" resource."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User the meal belongs to")),
		mcp.WithString("items_json", mcp.Required(), mcp.Description("JSON array of confirmed items")),
		mcp.WithString("eaten_at", mcp.Description("RFC 3339 time the meal was eaten; defaults to now")),
	), s.confirmMeal)

	s.mcp.AddTool(mcp.NewTool("get_confirm_contract",
		mcp.WithDescription("Returns the format of the items_json argument of confirm_meal."),
	), s.getConfirmContract)

	s.mcp.AddTool(mcp.NewTool("undo_last_meal",
		mcp.WithDescription("Delete the user's most recent meal from the last 24 hours."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User whose meal to undo")),
	), s.undoLastMeal)

	s.mcp.AddTool(mcp.NewTool("get_budget",
		mcp.WithDescription("Today's energy budget: target, used, remaining kcal and projection."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User to report on")),
	), s.getBudget)

	s.mcp.AddTool(mcp.NewTool("list_meals",
		mcp.WithDescription("List the user's meals of the last seven days, newest first."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User to list meals for")),
		mcp.WithNumber("limit", mcp.Description("Max meals to return (default 50)")),
	), s.listMeals)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Confirmed Items Format",
			mcp.WithResourceDescription("Format of the items accepted by confirm_meal."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) analyzeMeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.Analyze(ctx, pipeline.Request{
		UserID:   userID,
		Text:     text,
		AutoLog:  req.GetBool("auto_log", false),
		MealSlot: req.GetString("meal_slot", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(a), nil
}

func (s *Server) confirmMeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("items_json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var items []pipeline.ConfirmItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("items_json is not a JSON array of items: %v", err)), nil
	}

	creq := pipeline.ConfirmRequest{UserID: userID, Items: items}
	if v := req.GetString("eaten_at", ""); v != "" {
		if creq.EatenAt, err = time.Parse(time.RFC3339, v); err != nil {
			return mcp.NewToolResultError("eaten_at must be RFC 3339"), nil
		}
	}

	a, err := s.svc.Confirm(ctx, creq)
	if err != nil {
		return toolError(err), nil
	}
	if a.Logged != nil && a.Logged.IsDuplicate {
		return mcp.NewToolResultText(fmt.Sprintf("already logged: %s", a.Logged.MealLogID)), nil
	}
	return jsonResult(a), nil
}

func (s *Server) getConfirmContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ConfirmItemsContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ConfirmItemsContract,
		},
	}, nil
}

func (s *Server) undoLastMeal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := s.svc.UndoLast(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultText("no meal to undo in the last 24 hours"), nil
	}
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("undone: %s (%.0f kcal), %.0f kcal remaining today",
		u.Meal.ID, u.Meal.Totals.Kcal, u.Budget.RemainingKcal)), nil
}

func (s *Server) getBudget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Budget(ctx, userID, time.Time{})), nil
}

func (s *Server) listMeals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meals, err := s.svc.ListMeals(ctx, userID, time.Time{}, time.Time{}, req.GetInt("limit", 50))
	if err != nil {
		return toolError(err), nil
	}
	if len(meals) == 0 {
		return mcp.NewToolResultText("no meals found"), nil
	}
	return jsonResult(meals), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrOrphanedHeader) {
		return mcp.NewToolResultError("logging failed, please retry")
	}
	return mcp.NewToolResultError(err.Error())
}
