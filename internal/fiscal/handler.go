package fiscal

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/comercia/comercia/internal/platform/httpx"
	"github.com/comercia/comercia/internal/shared"
)

// ProfileSource loads the stored tax profile of a counterparty.
type ProfileSource interface {
	Profile(ctx context.Context, scope shared.Scope, kind string, id int64) (TaxProfile, error)
}

// Handler serves fiscal previews.
type Handler struct {
	logger   *slog.Logger
	profiles ProfileSource
}

// NewHandler constructs the handler. profiles may be nil, in which case
// previews need an inline client profile.
func NewHandler(logger *slog.Logger, profiles ProfileSource) *Handler {
	return &Handler{logger: logger, profiles: profiles}
}

// MountRoutes registers fiscal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/fiscal/preview", h.preview)
}

type counterpartyRef struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type previewRequest struct {
	Gross        decimal.Decimal  `json:"gross"`
	Seller       TaxProfile       `json:"seller"`
	Client       *TaxProfile      `json:"client,omitempty"`
	Counterparty *counterpartyRef `json:"counterparty,omitempty"`
}

type previewResponse struct {
	*Breakdown
	NetDisplay          string `json:"net_display"`
	TotalPayableDisplay string `json:"total_payable_display"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	scope := shared.ScopeFromContext(r.Context())
	if err := scope.Validate(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client := TaxProfile{}
	switch {
	case req.Client != nil:
		client = *req.Client
	case req.Counterparty != nil && h.profiles != nil:
		profile, err := h.profiles.Profile(r.Context(), scope, req.Counterparty.Kind, req.Counterparty.ID)
		if err != nil {
			h.logger.Debug("fiscal preview profile lookup", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		client = profile
	}
	b := Calculate(req.Gross, req.Seller, client)
	if b == nil {
		httpx.RespondError(w, shared.Validation("gross must be positive"))
		return
	}
	httpx.JSON(w, http.StatusOK, previewResponse{
		Breakdown:           b,
		NetDisplay:          FormatCOP(b.Net),
		TotalPayableDisplay: FormatCOP(b.TotalPayable),
	})
}
