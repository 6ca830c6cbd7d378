package fiscal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ordinaryNaturalSeller() TaxProfile {
	return TaxProfile{
		PersonType:       PersonNatural,
		Regime:           RegimeOrdinario,
		SelfWithholding:  No,
		LargeTaxpayer:    No,
		WithholdingAgent: No,
		VATResponsible:   Yes,
		ICAActivityCode:  "7110",
	}
}

func largeTaxpayerClient() TaxProfile {
	return TaxProfile{
		PersonType:       PersonJuridica,
		Regime:           RegimeOrdinario,
		SelfWithholding:  No,
		LargeTaxpayer:    Yes,
		WithholdingAgent: Yes,
		VATResponsible:   Yes,
	}
}

func TestCalculateNonPositiveGrossReturnsNil(t *testing.T) {
	for _, gross := range []string{"0", "-1", "-10000000"} {
		assert.Nil(t, Calculate(d(gross), ordinaryNaturalSeller(), largeTaxpayerClient()), gross)
	}
}

func TestCalculateLargeTaxpayerExample(t *testing.T) {
	b := Calculate(d("10000000"), ordinaryNaturalSeller(), largeTaxpayerClient())
	require.NotNil(t, b)

	assert.True(t, b.VATApplies)
	assert.True(t, b.VAT.Equal(d("1900000")))
	assert.True(t, b.TotalPayable.Equal(d("11900000")))
	assert.True(t, b.WithholdingsApply)
	assert.True(t, b.IncomeWithholding.Equal(d("1100000")))
	assert.True(t, b.VATWithholding.Equal(d("285000")))
	// 6.9 per mille for activity 7110
	assert.True(t, b.ICAWithholding.Equal(d("69000")))
	assert.True(t, b.TotalWithholdings.Equal(d("1454000")))
	assert.True(t, b.Net.Equal(d("10446000")), b.Net.String())
	assert.False(t, b.Estimated)
}

func TestCalculateSelfWithholdingSellerHasNoWithholdings(t *testing.T) {
	seller := ordinaryNaturalSeller()
	seller.SelfWithholding = Yes

	b := Calculate(d("1000000"), seller, largeTaxpayerClient())
	require.NotNil(t, b)

	assert.False(t, b.WithholdingsApply)
	assert.True(t, b.IncomeWithholding.IsZero())
	assert.True(t, b.TotalWithholdings.IsZero())
	assert.True(t, b.Net.Equal(b.TotalPayable))
}

func TestCalculateClientWithoutWithholdingObligations(t *testing.T) {
	client := largeTaxpayerClient()
	client.LargeTaxpayer = No
	client.WithholdingAgent = No

	b := Calculate(d("1000000"), ordinaryNaturalSeller(), client)
	require.NotNil(t, b)

	assert.False(t, b.WithholdingsApply)
	assert.True(t, b.Net.Equal(d("1190000")))
}

func TestCalculateSellerNotVATResponsible(t *testing.T) {
	seller := ordinaryNaturalSeller()
	seller.VATResponsible = No
	seller.Regime = RegimeNoResponsableIVA

	b := Calculate(d("1000000"), seller, largeTaxpayerClient())
	require.NotNil(t, b)

	assert.False(t, b.VATApplies)
	assert.True(t, b.VAT.IsZero())
	assert.True(t, b.VATWithholding.IsZero())
	assert.True(t, b.IncomeWithholding.Equal(d("100000")))
}

func TestCalculateUnsetFlagsUseConservativeDefaults(t *testing.T) {
	client := TaxProfile{PersonType: PersonJuridica, Regime: RegimeOrdinario}

	b := Calculate(d("1000000"), ordinaryNaturalSeller(), client)
	require.NotNil(t, b)

	assert.True(t, b.Estimated)
	assert.True(t, b.WithholdingsApply, "unset gran_contribuyente must not be read as false")
	assert.True(t, b.VATWithholding.Equal(d("28500")))
}

func TestCalculateExplicitICARateWins(t *testing.T) {
	seller := ordinaryNaturalSeller()
	rate := d("4.14")
	seller.ICARate = &rate

	b := Calculate(d("1000000"), seller, largeTaxpayerClient())
	require.NotNil(t, b)
	assert.True(t, b.ICAWithholding.Equal(d("4140")))
}

func TestCalculateSimpleRegimeHasNoIncomeWithholding(t *testing.T) {
	seller := ordinaryNaturalSeller()
	seller.Regime = RegimeSimple

	b := Calculate(d("2000000"), seller, largeTaxpayerClient())
	require.NotNil(t, b)
	assert.True(t, b.IncomeWithholding.IsZero())
	assert.True(t, b.ICAWithholding.IsPositive())
}

func TestIncomeWithholdingRateUnknownFallsBack(t *testing.T) {
	assert.True(t, IncomeWithholdingRate("otro", RegimeOrdinario).Equal(d("0.11")))
	assert.True(t, ICARate(TaxProfile{ICAActivityCode: "0000"}).Equal(d("9.66")))
}
