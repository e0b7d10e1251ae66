package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/confidence"
	"github.com/starford/macrolog/internal/meallog"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/pipeline"
)

type fakeService struct {
	analyzed  pipeline.Request
	confirmed pipeline.ConfirmRequest
	limit     int
	undoErr   error
	meals     []models.MealLogRecord
	duplicate bool
}

func (f *fakeService) Analyze(_ context.Context, req pipeline.Request) (*pipeline.Analysis, error) {
	f.analyzed = req
	if strings.TrimSpace(req.Text) == "?" {
		return nil, fmt.Errorf("pipeline: no foods: %w", apperr.ErrInvalidInput)
	}
	return &pipeline.Analysis{
		Totals:   models.Macros{Kcal: 420},
		Decision: confidence.Decision{Route: confidence.RouteVerify},
		View:     "Review and confirm:",
	}, nil
}

func (f *fakeService) Confirm(_ context.Context, req pipeline.ConfirmRequest) (*pipeline.Analysis, error) {
	f.confirmed = req
	return &pipeline.Analysis{
		Totals: models.Macros{Kcal: 225},
		Logged: &meallog.Result{Success: true, MealLogID: "m1", IsDuplicate: f.duplicate},
	}, nil
}

func (f *fakeService) UndoLast(_ context.Context, userID string) (*pipeline.Undo, error) {
	if f.undoErr != nil {
		return nil, f.undoErr
	}
	return &pipeline.Undo{
		Meal:   &models.MealLogRecord{ID: "m1", UserID: userID, Totals: models.Macros{Kcal: 382}},
		Budget: models.EnergyBudget{RemainingKcal: 2000},
	}, nil
}

func (f *fakeService) Budget(context.Context, string, time.Time) models.EnergyBudget {
	return models.EnergyBudget{TargetKcal: 2000, UsedKcal: 500, RemainingKcal: 1500}
}

func (f *fakeService) ListMeals(_ context.Context, _ string, _, _ time.Time, limit int) ([]models.MealLogRecord, error) {
	f.limit = limit
	return f.meals, nil
}

func testServer(t *testing.T) (*Server, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "analyze_meal":
		result, err = srv.analyzeMeal(ctx, req)
	case "confirm_meal":
		result, err = srv.confirmMeal(ctx, req)
	case "get_confirm_contract":
		result, err = srv.getConfirmContract(ctx, req)
	case "undo_last_meal":
		result, err = srv.undoLastMeal(ctx, req)
	case "get_budget":
		result, err = srv.getBudget(ctx, req)
	case "list_meals":
		result, err = srv.listMeals(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAnalyzeMeal(t *testing.T) {
	srv, svc := testServer(t)
	r := callTool(t, srv, "analyze_meal", map[string]interface{}{
		"user_id":   "u1",
		"text":      "10-piece nuggets",
		"auto_log":  true,
		"meal_slot": "snack",
	})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	if svc.analyzed.UserID != "u1" || !svc.analyzed.AutoLog || svc.analyzed.MealSlot != "snack" {
		t.Errorf("request = %+v", svc.analyzed)
	}
	var a pipeline.Analysis
	if err := json.Unmarshal([]byte(resultText(r)), &a); err != nil {
		t.Fatal(err)
	}
	if a.Decision.Route != confidence.RouteVerify || a.View == "" {
		t.Errorf("analysis = %+v", a)
	}
}

func TestAnalyzeMeal_Errors(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "analyze_meal", map[string]interface{}{"text": "eggs"}); !r.IsError {
		t.Error("expected error for missing user_id")
	}
	if r := callTool(t, srv, "analyze_meal", map[string]interface{}{"user_id": "u1", "text": "?"}); !r.IsError {
		t.Error("expected error for text without foods")
	}
}

func TestConfirmMeal(t *testing.T) {
	srv, svc := testServer(t)
	r := callTool(t, srv, "confirm_meal", map[string]interface{}{
		"user_id":    "u1",
		"items_json": `[{"name":"protein shake","quantity":1,"macros":{"kcal":120,"protein_g":24}},{"name":"banana"}]`,
		"eaten_at":   "2026-03-02T08:00:00Z",
	})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	got := svc.confirmed
	if len(got.Items) != 2 || got.Items[0].Macros == nil || got.Items[0].Macros.ProteinG != 24 {
		t.Errorf("items = %+v", got.Items)
	}
	if !got.EatenAt.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("eaten_at = %v", got.EatenAt)
	}

	svc.duplicate = true
	r = callTool(t, srv, "confirm_meal", map[string]interface{}{"user_id": "u1", "items_json": `[{"name":"banana"}]`})
	if text := resultText(r); text != "already logged: m1" {
		t.Errorf("duplicate result = %q", text)
	}
}

func TestConfirmMeal_BadArguments(t *testing.T) {
	srv, _ := testServer(t)
	for _, args := range []map[string]interface{}{
		{"user_id": "u1", "items_json": "not json"},
		{"user_id": "u1", "items_json": `[{"name":"banana"}]`, "eaten_at": "yesterday"},
	} {
		if r := callTool(t, srv, "confirm_meal", args); !r.IsError {
			t.Errorf("args %v: expected error", args)
		}
	}
}

func TestGetConfirmContract(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "get_confirm_contract", nil)); text != ConfirmItemsContract {
		t.Error("contract mismatch")
	}
}

func TestUndoLastMeal(t *testing.T) {
	srv, svc := testServer(t)
	r := callTool(t, srv, "undo_last_meal", map[string]interface{}{"user_id": "u1"})
	if text := resultText(r); text != "undone: m1 (382 kcal), 2000 kcal remaining today" {
		t.Errorf("undo = %q", text)
	}

	svc.undoErr = fmt.Errorf("meallog: undo: %w", apperr.ErrNotFound)
	r = callTool(t, srv, "undo_last_meal", map[string]interface{}{"user_id": "u1"})
	if r.IsError || !strings.HasPrefix(resultText(r), "no meal to undo") {
		t.Errorf("undo nothing = %q", resultText(r))
	}
}

func TestGetBudget(t *testing.T) {
	srv, _ := testServer(t)
	var b models.EnergyBudget
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "get_budget", map[string]interface{}{"user_id": "u1"}))), &b); err != nil {
		t.Fatal(err)
	}
	if b.RemainingKcal != 1500 {
		t.Errorf("budget = %+v", b)
	}
}

func TestListMeals(t *testing.T) {
	srv, svc := testServer(t)
	r := callTool(t, srv, "list_meals", map[string]interface{}{"user_id": "u1", "limit": 5})
	if resultText(r) != "no meals found" {
		t.Errorf("empty list = %q", resultText(r))
	}
	if svc.limit != 5 {
		t.Errorf("limit = %d, want 5", svc.limit)
	}

	svc.meals = []models.MealLogRecord{{ID: "m1"}}
	r = callTool(t, srv, "list_meals", map[string]interface{}{"user_id": "u1"})
	if !strings.Contains(resultText(r), `"id": "m1"`) || svc.limit != 50 {
		t.Errorf("list = %q, limit = %d", resultText(r), svc.limit)
	}
}
