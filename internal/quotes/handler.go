package quotes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/comercia/comercia/internal/platform/httpx"
	"github.com/comercia/comercia/internal/shared"
)

// IdempotencyHeader carries the client key for retry-safe duplication.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes quote endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	accept  http.HandlerFunc
}

// NewHandler constructs the quote handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// WithAccept sets the handler for POST /quotes/{id}/accept. Accepting a quote
// also wins its opportunity, which this package does not own.
func (h *Handler) WithAccept(accept http.HandlerFunc) *Handler {
	h.accept = accept
	return h
}

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/opportunities/{id}/quotes", h.list)
	r.Route("/quotes", func(r chi.Router) {
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Patch("/", h.patch)
			r.Delete("/", h.delete)
			r.Post("/send", h.transition(h.service.Send))
			r.Post("/reject", h.transition(h.service.Reject))
			r.Post("/reopen", h.transition(h.service.Reopen))
			if h.accept != nil {
				r.Post("/accept", h.accept)
			}
			r.Post("/duplicate", h.duplicate)
			r.Post("/items", h.addItem)
			r.Delete("/items/{itemID}", h.deleteItem)
			r.Post("/items/{itemID}/rubros", h.addRubro)
			r.Patch("/rubros/{rubroID}", h.updateRubro)
			r.Delete("/rubros/{rubroID}", h.deleteRubro)
		})
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if Outcome(err) == "error" {
		h.logger.Error("quote request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quotes, err := h.service.List(r.Context(), shared.ScopeFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, quotes)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Create(r.Context(), shared.ScopeFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Get(r.Context(), shared.ScopeFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch QuotePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Patch(r.Context(), shared.ScopeFromContext(r.Context()), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.ScopeFromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(op func(ctx context.Context, scope shared.Scope, id int64) (Quote, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		q, err := op(r.Context(), shared.ScopeFromContext(r.Context()), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, q)
	}
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.Duplicate(r.Context(), shared.ScopeFromContext(r.Context()), id, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

type addItemRequest struct {
	Name          string `json:"name"`
	CatalogItemID int64  `json:"catalog_item_id"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	scope := shared.ScopeFromContext(r.Context())
	var q Quote
	if req.CatalogItemID > 0 {
		q, err = h.service.AddItemFromCatalog(r.Context(), scope, id, req.CatalogItemID)
	} else {
		q, err = h.service.AddItem(r.Context(), scope, id, ItemInput{Name: req.Name})
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.DeleteItem(r.Context(), shared.ScopeFromContext(r.Context()), id, itemID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) addRubro(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input RubroInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.AddRubro(r.Context(), shared.ScopeFromContext(r.Context()), id, itemID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) updateRubro(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rubroID, err := httpx.IDParam(r, "rubroID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var patch RubroPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.UpdateRubro(r.Context(), shared.ScopeFromContext(r.Context()), id, rubroID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) deleteRubro(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rubroID, err := httpx.IDParam(r, "rubroID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.service.DeleteRubro(r.Context(), shared.ScopeFromContext(r.Context()), id, rubroID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}
