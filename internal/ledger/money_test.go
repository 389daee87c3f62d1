package ledger

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 45.10 ")
	require.NoError(t, err)
	assert.Equal(t, "45.1", got.String())

	for _, bad := range []string{"", "abc", "NaN", "Inf", "1e"} {
		_, err := ParseAmount(bad)
		assert.True(t, IsValidation(err), "input %q", bad)
	}
}

func TestAmountFromFloat(t *testing.T) {
	got, err := AmountFromFloat(0.9)
	require.NoError(t, err)
	assert.Equal(t, "0.9", got.String())

	_, err = AmountFromFloat(math.NaN())
	assert.True(t, IsValidation(err))
	_, err = AmountFromFloat(math.Inf(1))
	assert.True(t, IsValidation(err))
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", got)

	_, err = NormalizeCurrency("  ")
	assert.True(t, IsValidation(err))
	_, err = NormalizeCurrency("U SD")
	assert.True(t, IsValidation(err))
}

func TestRateTable_JSON(t *testing.T) {
	table := RateTable{
		{Base: "USD", Counter: "EUR"}: d("0.9"),
		{Base: "EUR", Counter: "USD"}: d("1.11111"),
	}

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `{"EUR":{"USD":"1.11111"},"USD":{"EUR":"0.9"}}`, string(data))

	var back RateTable
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Len(t, back, 2)
	assert.Equal(t, "1.11111", back[Pair{"EUR", "USD"}].String())
}

func TestRateTable_UnmarshalFlatKeys(t *testing.T) {
	var table RateTable
	require.NoError(t, json.Unmarshal([]byte(`{"USD_EUR": 0.9, "EUR_USD": 1.11111}`), &table))
	assert.Equal(t, "0.9", table[Pair{"USD", "EUR"}].String())

	err := json.Unmarshal([]byte(`{"USDEUR": 0.9}`), &table)
	assert.Error(t, err)
}

func TestError_Format(t *testing.T) {
	err := Validationf("set balance", "balance must be non-negative, got %s", "-5")
	assert.Equal(t, "set balance: VALIDATION_ERROR: balance must be non-negative, got -5", err.Error())

	wrapped := PersistenceFailure("commit", assert.AnError)
	assert.True(t, IsPersistence(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, Kind(""), KindOf(assert.AnError))
}
