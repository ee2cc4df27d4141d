// Package handler exposes policy administration over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certgate/internal/platform/middleware"
	"certgate/internal/policy"
	dErrors "certgate/pkg/domain-errors"
	"certgate/pkg/platform/httputil"
	"certgate/pkg/requestcontext"
)

// Handler handles policy inspection and reload endpoints.
type Handler struct {
	logger    *slog.Logger
	registry  *policy.Registry
	validator middleware.CallerValidator
}

func New(registry *policy.Registry, validator middleware.CallerValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		validator: validator,
	}
}

// Register mounts the policy routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Get("/v1/policies", h.handleList)
		r.Post("/v1/policies/reload", h.handleReload)
	})
}

type policySummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Backend     string `json:"backend"`
	TTL         string `json:"ttl"`
	Steps       int    `json:"steps"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	summaries := make([]policySummary, 0, len(names))
	for _, name := range names {
		pol, err := h.registry.Resolve(name)
		if err != nil {
			// The snapshot is immutable; a name from it always resolves.
			continue
		}
		summaries = append(summaries, policySummary{
			Name:        pol.Name,
			Description: pol.Description,
			Backend:     pol.Profile.Backend,
			TTL:         pol.Profile.TTL.Round(time.Second).String(),
			Steps:       len(pol.Chain),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": summaries})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.registry.Reload(); err != nil {
		h.logger.ErrorContext(ctx, "policy reload failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		// The previous snapshot stays active on a failed reload.
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "policy reload rejected", err))
		return
	}

	h.logger.InfoContext(ctx, "policies reloaded",
		"request_id", requestcontext.RequestID(ctx),
		"caller", requestcontext.CallerFrom(ctx).Subject,
		"policies", len(h.registry.Names()),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": h.registry.Names()})
}
