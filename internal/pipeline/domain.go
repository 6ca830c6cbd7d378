// Package pipeline owns the opportunity stage machine and the win transition
// that turns a deal into a project with a budget.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/comercia/comercia/internal/counterparties"
	"github.com/comercia/comercia/internal/quotes"
)

// Stage is the sales stage of an opportunity.
type Stage string

const (
	StageNew         Stage = "nuevo"
	StageContacted   Stage = "contactado"
	StageQualified   Stage = "calificado"
	StageNegotiation Stage = "negociacion"
	StageWon         Stage = "ganada"
	StageLost        Stage = "perdida"
)

// LossReason is the closed list of reasons a deal is lost.
type LossReason string

const (
	LossPrice       LossReason = "precio"
	LossCompetition LossReason = "competencia"
	LossNoBudget    LossReason = "sin_presupuesto"
	LossNoResponse  LossReason = "sin_respuesta"
	LossTiming      LossReason = "tiempos"
	LossScope       LossReason = "alcance"
	LossOther       LossReason = "otro"
)

// Opportunity is a potential deal.
type Opportunity struct {
	ID             int64       `json:"id"`
	WorkspaceID    uuid.UUID   `json:"workspace_id"`
	ContactID      *int64      `json:"contact_id,omitempty"`
	CompanyID      *int64      `json:"company_id,omitempty"`
	Description    string      `json:"description"`
	EstimatedValue float64     `json:"estimated_value"`
	Stage          Stage       `json:"stage"`
	LossReason     *LossReason `json:"loss_reason,omitempty"`
	LossNote       *string     `json:"loss_note,omitempty"`
	LastAction     *string     `json:"last_action,omitempty"`
	LastActionAt   *time.Time  `json:"last_action_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Counterparty resolves who the deal is closed with: the company when there
// is one, otherwise the contact acting as a natural person.
func (o Opportunity) Counterparty() (counterparties.Ref, bool) {
	if o.CompanyID != nil && *o.CompanyID > 0 {
		return counterparties.Ref{Kind: counterparties.KindCompany, ID: *o.CompanyID}, true
	}
	if o.ContactID != nil && *o.ContactID > 0 {
		return counterparties.Ref{Kind: counterparties.KindContact, ID: *o.ContactID}, true
	}
	return counterparties.Ref{}, false
}

// BudgetCategory classifies a project budget line.
type BudgetCategory string

const (
	BudgetHours                BudgetCategory = "horas"
	BudgetSubcontracting       BudgetCategory = "subcontratacion"
	BudgetMaterials            BudgetCategory = "materiales"
	BudgetTransport            BudgetCategory = "transporte"
	BudgetProfessionalServices BudgetCategory = "servicios_profesionales"
	BudgetGeneral              BudgetCategory = "general"
)

var budgetCategories = map[quotes.Category]BudgetCategory{
	quotes.CategoryLabor:                BudgetHours,
	quotes.CategorySubcontractedLabor:   BudgetSubcontracting,
	quotes.CategoryMaterials:            BudgetMaterials,
	quotes.CategoryTravel:               BudgetTransport,
	quotes.CategorySoftware:             BudgetProfessionalServices,
	quotes.CategoryProfessionalServices: BudgetProfessionalServices,
}

// BudgetCategoryFor maps a rubro category to a budget category.
func BudgetCategoryFor(c quotes.Category) BudgetCategory {
	if bc, ok := budgetCategories[c]; ok {
		return bc
	}
	return BudgetGeneral
}

// Project is the delivery record created when a deal is won.
type Project struct {
	ID                 int64              `json:"id"`
	WorkspaceID        uuid.UUID          `json:"workspace_id"`
	OpportunityID      int64              `json:"opportunity_id"`
	QuoteID            *int64             `json:"quote_id,omitempty"`
	Counterparty       counterparties.Ref `json:"counterparty"`
	ContactID          *int64             `json:"contact_id,omitempty"`
	Name               string             `json:"name"`
	TotalBudget        float64            `json:"total_budget"`
	EstimatedProfit    *float64           `json:"estimated_profit"`
	EstimatedMargin    *float64           `json:"estimated_margin"`
	EstimatedRetention *float64           `json:"estimated_retention"`
	EstimatedHours     float64            `json:"estimated_hours"`
	CreatedAt          time.Time          `json:"created_at"`
	BudgetLines        []BudgetLine       `json:"budget_lines"`
}

// BudgetLine is one category of a project budget.
type BudgetLine struct {
	ID          int64          `json:"id"`
	ProjectID   int64          `json:"project_id"`
	Category    BudgetCategory `json:"category"`
	Description string         `json:"description"`
	Amount      float64        `json:"amount"`
}

// FiscalGap lists what must be supplied before a deal can be won.
type FiscalGap struct {
	Counterparty counterparties.Ref `json:"counterparty"`
	Missing      []string           `json:"missing"`
}

// WinResult is the outcome of a win attempt. Exactly one of Project and
// NeedsFiscalData is set when the returned error is nil.
type WinResult struct {
	Opportunity     *Opportunity `json:"opportunity,omitempty"`
	Project         *Project     `json:"project,omitempty"`
	NeedsFiscalData *FiscalGap   `json:"needs_fiscal_data,omitempty"`
}

// CreateOpportunityRequest opens an opportunity in the initial stage.
type CreateOpportunityRequest struct {
	ContactID      *int64  `json:"contact_id,omitempty" validate:"omitempty,gt=0"`
	CompanyID      *int64  `json:"company_id,omitempty" validate:"omitempty,gt=0"`
	Description    string  `json:"description" validate:"max=2000"`
	EstimatedValue float64 `json:"estimated_value" validate:"gte=0"`
}

// LoseRequest closes an opportunity as lost.
type LoseRequest struct {
	Reason LossReason `json:"reason" validate:"required,oneof=precio competencia sin_presupuesto sin_respuesta tiempos alcance otro"`
	Note   *string    `json:"note,omitempty" validate:"omitempty,max=1000"`
}
