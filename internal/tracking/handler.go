package tracking

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsledger/opsledger/internal/platform/httpx"
)

// Handler manages time-tracking endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers time-tracking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/team-tasks/{taskID}/time-tracking", h.trackTask)
	r.Post("/projects/{projectID}/features/{featureID}/time-tracking", h.trackFeature)
}

type trackRequest struct {
	Action string `json:"action"`
}

type trackResponse struct {
	Success bool     `json:"success"`
	Item    WorkItem `json:"item"`
	Message string   `json:"message"`
}

func (h *Handler) trackTask(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, KindTask, "", chi.URLParam(r, "taskID"))
}

func (h *Handler) trackFeature(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, KindFeature, chi.URLParam(r, "projectID"), chi.URLParam(r, "featureID"))
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request, kind ItemKind, projectID, id string) {
	var req trackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	action, err := ParseTimerAction(req.Action)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "action must be start, pause or complete")
		return
	}

	result, err := h.service.Track(r.Context(), kind, projectID, id, action)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("timer transition failed",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("action", string(action)),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, trackResponse{Success: true, Item: result.Item, Message: result.Message})
}
