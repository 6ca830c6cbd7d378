package pipeline

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/platform/httpx"
	"github.com/comercia/comercia/internal/shared"
)

// Handler exposes opportunity endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers opportunity routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/opportunities", h.create)
	r.Get("/opportunities/{id}", h.get)
	r.Post("/opportunities/{id}/advance", h.advance)
	r.Post("/opportunities/{id}/lose", h.lose)
	r.Post("/opportunities/{id}/win", h.win)
	r.Get("/opportunities/{id}/project", h.project)
}

type winRequest struct {
	FiscalPatch *counterparties.FiscalPatch `json:"fiscal_patch,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if winOutcome(err) == "error" {
		h.logger.Error("pipeline request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOpportunityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Create(r.Context(), shared.ScopeFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Get(r.Context(), shared.ScopeFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) project(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.Project(r.Context(), shared.ScopeFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Advance(r.Context(), shared.ScopeFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) lose(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req LoseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Lose(r.Context(), shared.ScopeFromContext(r.Context()), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) win(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req winRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Win(r.Context(), shared.ScopeFromContext(r.Context()), id, req.FiscalPatch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.NeedsFiscalData != nil {
		httpx.Unprocessable(w, "counterparty fiscal data incomplete", res.NeedsFiscalData.Missing)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// AcceptQuote serves POST /quotes/{id}/accept.
func (h *Handler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req winRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.AcceptQuote(r.Context(), shared.ScopeFromContext(r.Context()), id, req.FiscalPatch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.NeedsFiscalData != nil {
		httpx.Unprocessable(w, "quote accepted; counterparty fiscal data incomplete", res.NeedsFiscalData.Missing)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
