package quotes

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects how a quote is priced.
type Mode string

const (
	// ModeFlash is a single described amount.
	ModeFlash Mode = "flash"
	// ModeDetailed is an item/rubro breakdown.
	ModeDetailed Mode = "detailed"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Category tags a rubro with its cost type.
type Category string

const (
	CategoryLabor                Category = "mano_obra"
	CategorySubcontractedLabor   Category = "mano_obra_subcontratada"
	CategoryMaterials            Category = "materiales"
	CategoryTravel               Category = "viaticos"
	CategorySoftware             Category = "software"
	CategoryProfessionalServices Category = "servicios_profesionales"
)

// IsLabor reports whether quantities of this category are hours.
func (c Category) IsLabor() bool {
	return c == CategoryLabor || c == CategorySubcontractedLabor
}

// Quote is a priced proposal attached to an opportunity.
type Quote struct {
	ID             int64      `json:"id"`
	WorkspaceID    uuid.UUID  `json:"workspace_id"`
	OpportunityID  int64      `json:"opportunity_id"`
	Mode           Mode       `json:"mode"`
	Status         Status     `json:"status"`
	Description    *string    `json:"description,omitempty"`
	Total          float64    `json:"total"`
	CostTotal      *float64   `json:"cost_total,omitempty"`
	MarginPct      *float64   `json:"margin_pct,omitempty"`
	Consecutive    string     `json:"consecutive"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	DuplicatedFrom *int64     `json:"duplicated_from,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []Item     `json:"items,omitempty"`
}

// Item is a named line of a detailed quote.
type Item struct {
	ID       int64   `json:"id"`
	QuoteID  int64   `json:"quote_id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Subtotal float64 `json:"subtotal"`
	Rubros   []Rubro `json:"rubros,omitempty"`
}

// Rubro is a typed cost line inside an item.
type Rubro struct {
	ID          int64    `json:"id"`
	ItemID      int64    `json:"item_id"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit"`
	UnitPrice   float64  `json:"unit_price"`
	Total       float64  `json:"total"`
}

// CatalogItem is a reusable item template.
type CatalogItem struct {
	ID          int64           `json:"id"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	Name        string          `json:"name"`
	Price       float64         `json:"price"`
	Rubros      []RubroTemplate `json:"rubros,omitempty"`
}

// RubroTemplate is a predefined rubro of a catalog item.
type RubroTemplate struct {
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit"`
	UnitPrice   float64  `json:"unit_price"`
}

// CreateQuoteRequest creates a draft quote.
type CreateQuoteRequest struct {
	OpportunityID int64   `json:"opportunity_id" validate:"required,gt=0"`
	Mode          Mode    `json:"mode" validate:"required,oneof=flash detailed"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Total         float64 `json:"total" validate:"gte=0"`
}

// QuotePatch lists the header fields editable while a quote is a draft.
type QuotePatch struct {
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Total       *float64 `json:"total,omitempty" validate:"omitempty,gte=0"`
}

// ItemInput adds a blank item.
type ItemInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// RubroInput adds a rubro to an item.
type RubroInput struct {
	Category    Category `json:"category" validate:"required,oneof=mano_obra mano_obra_subcontratada materiales viaticos software servicios_profesionales"`
	Description string   `json:"description" validate:"max=500"`
	Quantity    float64  `json:"quantity" validate:"gt=0"`
	Unit        string   `json:"unit" validate:"required,max=20"`
	UnitPrice   float64  `json:"unit_price" validate:"gte=0"`
}

// RubroPatch lists the rubro fields editable while a quote is a draft.
type RubroPatch struct {
	Category    *Category `json:"category,omitempty" validate:"omitempty,oneof=mano_obra mano_obra_subcontratada materiales viaticos software servicios_profesionales"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity    *float64  `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Unit        *string   `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPrice   *float64  `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
}
