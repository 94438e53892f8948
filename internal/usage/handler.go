package usage

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/visionfy/visionfy/internal/api"
	"github.com/visionfy/visionfy/internal/auth"
	"github.com/visionfy/visionfy/internal/quota"
	"github.com/visionfy/visionfy/internal/users"
)

type QuotaReader interface {
	Peek(ctx context.Context, userID string) (*quota.Usage, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

type Handler struct {
	quota QuotaReader
	users UserLookup
}

func NewHandler(q QuotaReader, u UserLookup) *Handler {
	return &Handler{quota: q, users: u}
}

// Response reports today's consumption next to the plan's advertised
// monthly allowance. Only DailyLimit is enforced.
type Response struct {
	Plan             users.Plan `json:"plan"`
	DailyLimit       int        `json:"daily_limit"`
	Used             int        `json:"used"`
	Remaining        int        `json:"remaining"`
	ResetsAt         time.Time  `json:"resets_at"`
	PlanMonthlyLimit int        `json:"plan_monthly_limit"`
}

// Get handles GET /api/v1/usage.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	plan := users.PlanFree
	if id, err := uuid.Parse(claims.UserID); err == nil {
		user, err := h.users.GetByID(r.Context(), id)
		if err != nil {
			slog.Error("loading user for usage", "error", err, "user_id", claims.UserID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if user == nil {
			api.HandleError(w, api.ErrNotFound)
			return
		}
		if user.Plan != "" {
			plan = user.Plan
		}
	}

	u, err := h.quota.Peek(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("reading quota", "error", err, "user_id", claims.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, Response{
		Plan:             plan,
		DailyLimit:       u.Limit,
		Used:             u.Used,
		Remaining:        u.Remaining,
		ResetsAt:         u.ResetsAt,
		PlanMonthlyLimit: plan.MonthlyLimit(),
	})
}
