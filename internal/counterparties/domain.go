// Package counterparties stores the fiscal identity of the companies and
// contacts a workspace sells to.
package counterparties

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comercia/comercia/internal/fiscal"
	"github.com/comercia/comercia/internal/shared"
)

// Kind tells which table a counterparty lives in.
type Kind string

const (
	KindCompany Kind = "company"
	KindContact Kind = "contact"
)

// Ref points at a company or a contact.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// Valid reports whether the reference names a known kind and a positive id.
func (r Ref) Valid() bool {
	return (r.Kind == KindCompany || r.Kind == KindContact) && r.ID > 0
}

// Counterparty is the party a deal is closed with.
type Counterparty struct {
	Ref
	WorkspaceID uuid.UUID         `json:"workspace_id"`
	Name        string            `json:"name"`
	Identity    fiscal.Identity   `json:"identity"`
	Profile     fiscal.TaxProfile `json:"tax_profile"`
}

// Missing lists the fiscal fields still required to close a deal.
func (c Counterparty) Missing() []string {
	return fiscal.MissingFields(c.Identity, c.Profile)
}

// FiscalPatch sets fiscal fields on a counterparty. Nil fields are left as
// they are; a patch never clears a known flag.
type FiscalPatch struct {
	DocumentNumber   *string              `json:"document_number,omitempty" validate:"omitempty,document"`
	DocumentType     *fiscal.DocumentType `json:"document_type,omitempty" validate:"omitempty,oneof=NIT CC CE PAS"`
	PersonType       *fiscal.PersonType   `json:"person_type,omitempty" validate:"omitempty,oneof=natural juridica"`
	Regime           *fiscal.Regime       `json:"regime,omitempty" validate:"omitempty,oneof=ordinario simple especial no_responsable_iva"`
	SelfWithholding  *bool                `json:"autorretenedor,omitempty"`
	LargeTaxpayer    *bool                `json:"gran_contribuyente,omitempty"`
	WithholdingAgent *bool                `json:"agente_retenedor,omitempty"`
	VATResponsible   *bool                `json:"responsable_iva,omitempty"`
	ICAActivityCode  *string              `json:"ica_activity_code,omitempty" validate:"omitempty,numeric,max=6"`
	ICARate          *decimal.Decimal     `json:"ica_rate,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p FiscalPatch) Empty() bool {
	return p.DocumentNumber == nil && p.DocumentType == nil && p.PersonType == nil && p.Regime == nil &&
		p.SelfWithholding == nil && p.LargeTaxpayer == nil && p.WithholdingAgent == nil &&
		p.VATResponsible == nil && p.ICAActivityCode == nil && p.ICARate == nil
}

// NormalizeDocument drops the dots and spaces used to group document numbers,
// so "900.123.456-7" is stored as "900123456-7".
func NormalizeDocument(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// validDocument accepts 3 to 20 letters or digits after normalisation,
// optionally followed by a NIT verification digit ("-7").
func validDocument(raw string) bool {
	number, dv, hasDV := strings.Cut(NormalizeDocument(raw), "-")
	if len(number) < 3 || len(number) > 20 {
		return false
	}
	for _, r := range number {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	if hasDV {
		return len(dv) == 1 && dv[0] >= '0' && dv[0] <= '9'
	}
	return true
}

var maxICARate = decimal.NewFromInt(100)

func (p FiscalPatch) checkRate() error {
	if p.ICARate == nil {
		return nil
	}
	if p.ICARate.IsNegative() || p.ICARate.GreaterThan(maxICARate) {
		return shared.Validation("ica_rate must be between 0 and 100 per mille")
	}
	return nil
}

// Apply writes the patch onto c.
func (p FiscalPatch) Apply(c *Counterparty) {
	if p.DocumentNumber != nil {
		c.Identity.DocumentNumber = NormalizeDocument(*p.DocumentNumber)
	}
	if p.DocumentType != nil {
		c.Identity.DocumentType = *p.DocumentType
	}
	if p.PersonType != nil {
		c.Profile.PersonType = *p.PersonType
	}
	if p.Regime != nil {
		c.Profile.Regime = *p.Regime
	}
	if p.SelfWithholding != nil {
		c.Profile.SelfWithholding = fiscal.TriStateOf(p.SelfWithholding)
	}
	if p.LargeTaxpayer != nil {
		c.Profile.LargeTaxpayer = fiscal.TriStateOf(p.LargeTaxpayer)
	}
	if p.WithholdingAgent != nil {
		c.Profile.WithholdingAgent = fiscal.TriStateOf(p.WithholdingAgent)
	}
	if p.VATResponsible != nil {
		c.Profile.VATResponsible = fiscal.TriStateOf(p.VATResponsible)
	}
	if p.ICAActivityCode != nil {
		c.Profile.ICAActivityCode = *p.ICAActivityCode
	}
	if p.ICARate != nil {
		rate := *p.ICARate
		c.Profile.ICARate = &rate
	}
}
