package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/macrolog/internal/models"
	"github.com/starford/macrolog/internal/pipeline"
)

// Service is the meal pipeline behind the API.
type Service interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Analysis, error)
	Confirm(ctx context.Context, req pipeline.ConfirmRequest) (*pipeline.Analysis, error)
	UndoLast(ctx context.Context, userID string) (*pipeline.Undo, error)
	Budget(ctx context.Context, userID string, at time.Time) models.EnergyBudget
	ListMeals(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.MealLogRecord, error)
}

// UserStore persists per-user settings.
type UserStore interface {
	SetTargets(ctx context.Context, userID string, t models.UserTargets) error
	SetPreferences(ctx context.Context, userID string, p models.Preferences) error
	SetMetrics(ctx context.Context, userID string, m models.BodyMetrics) error
}

// Streamer serves a user's event stream.
type Streamer interface {
	Stream(w http.ResponseWriter, r *http.Request, userID string)
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, users UserStore, events Streamer, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc, users)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(UserMiddleware)

	r.Post("/meals/analyze", h.AnalyzeMeal)
	r.Post("/meals/confirm", h.ConfirmMeal)
	r.Get("/meals", h.ListMeals)
	r.Delete("/meals/last", h.UndoLastMeal)

	r.Get("/budget", h.Budget)

	r.Put("/users/me/targets", h.PutTargets)
	r.Put("/users/me/preferences", h.PutPreferences)
	r.Put("/users/me/metrics", h.PutMetrics)

	if events != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			events.Stream(w, r, userID(r))
		})
	}

	return r
}
