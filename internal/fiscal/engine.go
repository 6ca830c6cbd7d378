package fiscal

import "github.com/shopspring/decimal"

// Breakdown is what a client pays and what the seller receives for one gross amount.
type Breakdown struct {
	Gross decimal.Decimal `json:"gross"`

	VATApplies   bool            `json:"vat_applies"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	VAT          decimal.Decimal `json:"vat"`
	TotalPayable decimal.Decimal `json:"total_payable"`

	WithholdingsApply     bool            `json:"withholdings_apply"`
	IncomeWithholdingRate decimal.Decimal `json:"income_withholding_rate"`
	IncomeWithholding     decimal.Decimal `json:"income_withholding"`
	ICAWithholdingRate    decimal.Decimal `json:"ica_withholding_rate"` // per mille
	ICAWithholding        decimal.Decimal `json:"ica_withholding"`
	VATWithholdingRate    decimal.Decimal `json:"vat_withholding_rate"`
	VATWithholding        decimal.Decimal `json:"vat_withholding"`
	TotalWithholdings     decimal.Decimal `json:"total_withholdings"`

	Net decimal.Decimal `json:"net"`

	// Estimated is set when any profile field fell back to a default.
	Estimated bool `json:"estimated"`
}

// Calculate returns the breakdown for gross, or nil when gross is not positive.
// Amounts are rounded to whole pesos per component.
func Calculate(gross decimal.Decimal, seller, client TaxProfile) *Breakdown {
	if !gross.IsPositive() {
		return nil
	}

	s, sellerEstimated := seller.withDefaults(DefaultSeller)
	c, clientEstimated := client.withDefaults(DefaultCounterparty)

	b := &Breakdown{
		Gross:                 gross,
		VATRate:               decimal.Zero,
		VAT:                   decimal.Zero,
		IncomeWithholdingRate: decimal.Zero,
		IncomeWithholding:     decimal.Zero,
		ICAWithholdingRate:    decimal.Zero,
		ICAWithholding:        decimal.Zero,
		VATWithholdingRate:    decimal.Zero,
		VATWithholding:        decimal.Zero,
		Estimated:             sellerEstimated || clientEstimated,
	}

	if s.VATResponsible == Yes {
		b.VATApplies = true
		b.VATRate = vatRate
		b.VAT = gross.Mul(vatRate).Round(0)
	}
	b.TotalPayable = gross.Add(b.VAT)

	clientWithholds := c.WithholdingAgent == Yes || c.LargeTaxpayer == Yes
	b.WithholdingsApply = clientWithholds && s.SelfWithholding != Yes

	if b.WithholdingsApply {
		b.IncomeWithholdingRate = IncomeWithholdingRate(s.PersonType, s.Regime)
		b.IncomeWithholding = gross.Mul(b.IncomeWithholdingRate).Round(0)

		b.ICAWithholdingRate = ICARate(s)
		b.ICAWithholding = gross.Mul(b.ICAWithholdingRate).Div(perMille).Round(0)

		if b.VATApplies {
			b.VATWithholdingRate = vatWithholdRate
			b.VATWithholding = b.VAT.Mul(vatWithholdRate).Round(0)
		}
	}

	b.TotalWithholdings = b.IncomeWithholding.Add(b.ICAWithholding).Add(b.VATWithholding)
	b.Net = b.TotalPayable.Sub(b.TotalWithholdings)
	return b
}
