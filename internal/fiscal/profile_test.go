package fiscal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriStateJSON(t *testing.T) {
	var p TaxProfile
	require.NoError(t, json.Unmarshal([]byte(`{"gran_contribuyente":false,"autorretenedor":null}`), &p))
	assert.Equal(t, No, p.LargeTaxpayer)
	assert.Equal(t, Unset, p.SelfWithholding)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"gran_contribuyente":false`)
	assert.Contains(t, string(out), `"autorretenedor":null`)
}

func TestTriStatePtrRoundTrip(t *testing.T) {
	for _, ts := range []TriState{Unset, Yes, No} {
		assert.Equal(t, ts, TriStateOf(ts.Ptr()))
	}
}

func TestMissingFields(t *testing.T) {
	complete := TaxProfile{
		PersonType:      PersonJuridica,
		Regime:          RegimeOrdinario,
		LargeTaxpayer:   No,
		SelfWithholding: No,
	}
	id := Identity{DocumentNumber: "900123456", DocumentType: DocumentNIT}
	assert.Empty(t, MissingFields(id, complete))
	assert.True(t, Complete(id, complete))

	assert.Equal(t,
		[]string{FieldDocumentNumber, FieldDocumentType, FieldPersonType, FieldRegime, FieldLargeTaxpayer, FieldSelfWithholding},
		MissingFields(Identity{}, TaxProfile{}),
	)

	// false is a value, unset is not
	partial := complete
	partial.LargeTaxpayer = Unset
	assert.Equal(t, []string{FieldLargeTaxpayer}, MissingFields(id, partial))
}
