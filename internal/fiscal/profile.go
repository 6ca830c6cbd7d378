// Package fiscal computes Colombian VAT and withholding breakdowns and owns the
// fiscal-profile completeness rule used before a deal can close.
package fiscal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// TriState models a flag that may be unknown. Unset is never read as No.
type TriState uint8

const (
	Unset TriState = iota
	Yes
	No
)

// TriStateOf converts a nullable boolean.
func TriStateOf(b *bool) TriState {
	if b == nil {
		return Unset
	}
	if *b {
		return Yes
	}
	return No
}

// Known reports whether the flag was explicitly set.
func (t TriState) Known() bool { return t == Yes || t == No }

// Ptr returns the nullable boolean form used by storage.
func (t TriState) Ptr() *bool {
	switch t {
	case Yes:
		v := true
		return &v
	case No:
		v := false
		return &v
	default:
		return nil
	}
}

func (t TriState) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unset"
	}
}

// MarshalJSON encodes Unset as null.
func (t TriState) MarshalJSON() ([]byte, error) {
	if p := t.Ptr(); p != nil {
		return json.Marshal(*p)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts true, false or null.
func (t *TriState) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Unset
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("fiscal: tri-state flag: %w", err)
	}
	*t = TriStateOf(&b)
	return nil
}

// PersonType distinguishes natural persons from legal entities.
type PersonType string

const (
	PersonNatural  PersonType = "natural"
	PersonJuridica PersonType = "juridica"
)

// Regime is the DIAN tax regime.
type Regime string

const (
	RegimeOrdinario        Regime = "ordinario"
	RegimeSimple           Regime = "simple"
	RegimeEspecial         Regime = "especial"
	RegimeNoResponsableIVA Regime = "no_responsable_iva"
)

// DocumentType is the identification document kind.
type DocumentType string

const (
	DocumentNIT       DocumentType = "NIT"
	DocumentCC        DocumentType = "CC"
	DocumentCE        DocumentType = "CE"
	DocumentPasaporte DocumentType = "PAS"
)

// TaxProfile describes the tax situation of a seller or a counterparty.
type TaxProfile struct {
	PersonType       PersonType       `json:"person_type"`
	Regime           Regime           `json:"regime"`
	SelfWithholding  TriState         `json:"autorretenedor"`
	LargeTaxpayer    TriState         `json:"gran_contribuyente"`
	WithholdingAgent TriState         `json:"agente_retenedor"`
	VATResponsible   TriState         `json:"responsable_iva"`
	ICAActivityCode  string           `json:"ica_activity_code,omitempty"`
	ICARate          *decimal.Decimal `json:"ica_rate,omitempty"` // per mille
}

// DefaultSeller is assumed for any seller field left unset.
var DefaultSeller = TaxProfile{
	PersonType:       PersonNatural,
	Regime:           RegimeOrdinario,
	SelfWithholding:  No,
	LargeTaxpayer:    No,
	WithholdingAgent: No,
	VATResponsible:   Yes,
}

// DefaultCounterparty is assumed for any counterparty field left unset. It
// withholds everything it can, so the estimated net is never overstated.
var DefaultCounterparty = TaxProfile{
	PersonType:       PersonJuridica,
	Regime:           RegimeOrdinario,
	SelfWithholding:  No,
	LargeTaxpayer:    Yes,
	WithholdingAgent: Yes,
	VATResponsible:   Yes,
}

// withDefaults fills unset fields from def and reports whether any was filled.
func (p TaxProfile) withDefaults(def TaxProfile) (TaxProfile, bool) {
	filled := false
	if p.PersonType == "" {
		p.PersonType = def.PersonType
		filled = true
	}
	if p.Regime == "" {
		p.Regime = def.Regime
		filled = true
	}
	fill := func(v *TriState, d TriState) {
		if !v.Known() {
			*v = d
			filled = true
		}
	}
	fill(&p.SelfWithholding, def.SelfWithholding)
	fill(&p.LargeTaxpayer, def.LargeTaxpayer)
	fill(&p.WithholdingAgent, def.WithholdingAgent)
	fill(&p.VATResponsible, def.VATResponsible)
	return p, filled
}

// Identity is the document part of a counterparty's fiscal record.
type Identity struct {
	DocumentNumber string       `json:"document_number"`
	DocumentType   DocumentType `json:"document_type"`
}

// Field names reported by MissingFields.
const (
	FieldDocumentNumber  = "document_number"
	FieldDocumentType    = "document_type"
	FieldPersonType      = "person_type"
	FieldRegime          = "regime"
	FieldLargeTaxpayer   = "gran_contribuyente"
	FieldSelfWithholding = "autorretenedor"
)

// MissingFields lists what keeps a counterparty profile from being complete.
// An empty result means the profile is complete.
func MissingFields(id Identity, p TaxProfile) []string {
	var missing []string
	if id.DocumentNumber == "" {
		missing = append(missing, FieldDocumentNumber)
	}
	if id.DocumentType == "" {
		missing = append(missing, FieldDocumentType)
	}
	if p.PersonType == "" {
		missing = append(missing, FieldPersonType)
	}
	if p.Regime == "" {
		missing = append(missing, FieldRegime)
	}
	if !p.LargeTaxpayer.Known() {
		missing = append(missing, FieldLargeTaxpayer)
	}
	if !p.SelfWithholding.Known() {
		missing = append(missing, FieldSelfWithholding)
	}
	return missing
}

// Complete reports whether MissingFields is empty.
func Complete(id Identity, p TaxProfile) bool {
	return len(MissingFields(id, p)) == 0
}
