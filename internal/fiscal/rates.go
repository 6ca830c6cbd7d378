package fiscal

import "github.com/shopspring/decimal"

var (
	vatRate           = decimal.RequireFromString("0.19")
	vatWithholdRate   = decimal.RequireFromString("0.15")
	defaultIncomeRate = decimal.RequireFromString("0.11")
	defaultICARate    = decimal.RequireFromString("9.66")
	perMille          = decimal.NewFromInt(1000)
)

// Retención en la fuente for services and fees, by seller person type and regime.
var incomeRates = map[PersonType]map[Regime]decimal.Decimal{
	PersonNatural: {
		RegimeOrdinario:        decimal.RequireFromString("0.11"),
		RegimeEspecial:         decimal.RequireFromString("0.04"),
		RegimeSimple:           decimal.Zero,
		RegimeNoResponsableIVA: decimal.RequireFromString("0.10"),
	},
	PersonJuridica: {
		RegimeOrdinario:        decimal.RequireFromString("0.11"),
		RegimeEspecial:         decimal.RequireFromString("0.04"),
		RegimeSimple:           decimal.Zero,
		RegimeNoResponsableIVA: decimal.RequireFromString("0.11"),
	},
}

// ReteICA per-mille rates by CIIU activity code.
var icaRates = map[string]decimal.Decimal{
	"4111": decimal.RequireFromString("6.9"),
	"4290": decimal.RequireFromString("6.9"),
	"4321": decimal.RequireFromString("6.9"),
	"4329": decimal.RequireFromString("6.9"),
	"4330": decimal.RequireFromString("6.9"),
	"4651": decimal.RequireFromString("11.04"),
	"6201": decimal.RequireFromString("9.66"),
	"6202": decimal.RequireFromString("9.66"),
	"7020": decimal.RequireFromString("9.66"),
	"7110": decimal.RequireFromString("6.9"),
	"7112": decimal.RequireFromString("6.9"),
	"7490": decimal.RequireFromString("9.66"),
}

// IncomeWithholdingRate returns the income-tax withholding rate. Unknown
// combinations get the highest ordinary rate.
func IncomeWithholdingRate(pt PersonType, r Regime) decimal.Decimal {
	if byRegime, ok := incomeRates[pt]; ok {
		if rate, ok := byRegime[r]; ok {
			return rate
		}
	}
	return defaultIncomeRate
}

// ICARate returns the per-mille ICA withholding rate for a seller profile.
// An explicit rate on the profile wins over the activity-code table.
func ICARate(p TaxProfile) decimal.Decimal {
	if p.ICARate != nil && !p.ICARate.IsNegative() {
		return *p.ICARate
	}
	if rate, ok := icaRates[p.ICAActivityCode]; ok {
		return rate
	}
	return defaultICARate
}
