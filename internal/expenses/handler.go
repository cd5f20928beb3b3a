package expenses

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsledger/opsledger/internal/platform/httpx"
	"github.com/opsledger/opsledger/internal/shared"
)

// JobEnqueuer submits a reconcile-all run to the background worker.
type JobEnqueuer interface {
	EnqueueReconcileAll(ctx context.Context) error
}

// Handler manages expense endpoints.
type Handler struct {
	logger     *slog.Logger
	reconciler *Reconciler
	enqueuer   JobEnqueuer
	validate   *validator.Validate
	period     func() shared.BillingPeriod
}

// NewHandler builds a Handler instance. currentPeriod supplies the default
// period for listings; enqueuer may be nil, forcing synchronous runs.
func NewHandler(logger *slog.Logger, reconciler *Reconciler, enqueuer JobEnqueuer, currentPeriod func() shared.BillingPeriod) *Handler {
	return &Handler{
		logger:     logger,
		reconciler: reconciler,
		enqueuer:   enqueuer,
		validate:   validator.New(),
		period:     currentPeriod,
	}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/generate", h.generate)
	r.Post("/generate-all", h.generateAll)
}

type generateRequest struct {
	PersonEmail string  `json:"personEmail" validate:"required,email"`
	HourlyRate  float64 `json:"hourlyRate" validate:"required,gt=0"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.reconciler.GenerateExpenses(r.Context(), req.PersonEmail, req.HourlyRate)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRate), errors.Is(err, ErrPersonRequired):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrReconcileBusy):
			httpx.RespondError(w, httpx.ErrConflict)
		default:
			h.logger.Error("generate expenses", slog.String("person", req.PersonEmail), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	// Partial failures ride along in errors[]; the call itself succeeds so
	// the operator sees what was created and what to retry.
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"created":       len(result.Created),
		"expenses":      result.Created,
		"errors":        result.Errors,
		"billingPeriod": result.Period,
		"summary":       result.Summary,
	})
}

func (h *Handler) generateAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sync") != "1" && h.enqueuer != nil {
		if err := h.enqueuer.EnqueueReconcileAll(r.Context()); err != nil {
			h.logger.Error("enqueue reconcile-all", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"success": true, "enqueued": true})
		return
	}

	result, err := h.reconciler.GenerateExpensesForAll(r.Context())
	if err != nil {
		h.logger.Error("generate all expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"created":       result.Created,
		"perPerson":     result.PerPerson,
		"errors":        result.Errors,
		"billingPeriod": result.Period,
		"summary":       result.Summary,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	period := shared.BillingPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = h.period()
	}
	records, err := h.reconciler.expenses.ListExpensesByPeriod(r.Context(), period)
	if err != nil {
		h.logger.Error("list expenses", slog.String("period", period.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "billingPeriod": period, "data": records})
}
