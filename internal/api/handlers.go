package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/macrolog/internal/apperr"
	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/pipeline"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc   Service
	users UserStore
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, users UserStore) *Handler {
	return &Handler{svc: svc, users: users}
}

// validatable is implemented by every request body.
type validatable interface {
	Validate() error
}

// decode reads a JSON body into v and validates it. It writes the 400
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, v validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrOrphanedHeader):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("logging failed, please retry"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// AnalyzeMeal handles POST /api/meals/analyze.
//
//	@Summary		Resolve, score and route a meal description
//	@Tags			meals
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Meal text"
//	@Success		200		{object}	pipeline.Analysis
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meals/analyze [post]
func (h *Handler) AnalyzeMeal(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	preq := pipeline.Request{
		UserID:     userID(r),
		Text:       req.Text,
		MealSlot:   req.MealSlot,
		AutoLog:    req.AutoLog,
		BrandHints: req.BrandHints,
	}
	if req.EatenAt != nil {
		preq.EatenAt = *req.EatenAt
	}
	a, err := h.svc.Analyze(r.Context(), preq)
	if err != nil {
		writeError(w, "analyze meal", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ConfirmMeal handles POST /api/meals/confirm.
//
//	@Summary		Log a reviewed item list
//	@Tags			meals
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConfirmRequest	true	"Confirmed items"
//	@Success		201		{object}	pipeline.Analysis
//	@Success		200		{object}	pipeline.Analysis	"Duplicate of an existing meal"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meals/confirm [post]
func (h *Handler) ConfirmMeal(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.svc.Confirm(r.Context(), req.toPipeline(userID(r)))
	if err != nil {
		writeError(w, "confirm meal", err)
		return
	}
	status := http.StatusOK
	if a.Logged != nil && a.Logged.Success && !a.Logged.IsDuplicate {
		status = http.StatusCreated
	}
	writeJSON(w, status, a)
}

// ListMeals handles GET /api/meals.
//
//	@Summary		List meals in a time range, newest first
//	@Tags			meals
//	@Produce		json
//	@Param			from	query		string	false	"RFC 3339 start (inclusive)"
//	@Param			to		query		string	false	"RFC 3339 end (exclusive)"
//	@Param			limit	query		int		false	"Max meals"
//	@Success		200		{object}	MealListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meals [get]
func (h *Handler) ListMeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from must be RFC 3339"))
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("to must be RFC 3339"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	meals, err := h.svc.ListMeals(r.Context(), userID(r), from, to, limit)
	if err != nil {
		writeError(w, "list meals", err)
		return
	}
	if meals == nil {
		meals = []models.MealLogRecord{}
	}
	writeJSON(w, http.StatusOK, MealListResponse{Meals: meals})
}

// UndoLastMeal handles DELETE /api/meals/last.
//
//	@Summary		Delete the most recent meal of the last 24 hours
//	@Tags			meals
//	@Produce		json
//	@Success		200	{object}	pipeline.Undo
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/meals/last [delete]
func (h *Handler) UndoLastMeal(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.UndoLast(r.Context(), userID(r))
	if err != nil {
		writeError(w, "undo meal", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Budget handles GET /api/budget.
//
//	@Summary		Current energy budget of the day
//	@Tags			budget
//	@Produce		json
//	@Param			at	query		string	false	"RFC 3339 instant, defaults to now"
//	@Success		200	{object}	models.EnergyBudget
//	@Security		BearerAuth
//	@Router			/budget [get]
func (h *Handler) Budget(w http.ResponseWriter, r *http.Request) {
	at, err := parseTime(r.URL.Query().Get("at"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("at must be RFC 3339"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Budget(r.Context(), userID(r), at))
}

// PutTargets handles PUT /api/users/me/targets.
func (h *Handler) PutTargets(w http.ResponseWriter, r *http.Request) {
	var req TargetsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.users.SetTargets(r.Context(), userID(r), models.UserTargets(req)); err != nil {
		writeError(w, "set targets", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// PutPreferences handles PUT /api/users/me/preferences.
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.users.SetPreferences(r.Context(), userID(r), models.Preferences(req)); err != nil {
		writeError(w, "set preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// PutMetrics handles PUT /api/users/me/metrics.
func (h *Handler) PutMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.users.SetMetrics(r.Context(), userID(r), models.BodyMetrics(req)); err != nil {
		writeError(w, "set metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
