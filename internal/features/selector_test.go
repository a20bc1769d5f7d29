package features

import (
	"testing"

	"wallet-risk/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelector_Validation(t *testing.T) {
	_, err := NewSelector(nil)
	assert.Error(t, err)

	_, err = NewSelector([]string{"a", "b", "a"})
	assert.Error(t, err)

	_, err = NewSelector([]string{"a", ""})
	assert.Error(t, err)
}

func TestSelector_Select(t *testing.T) {
	s, err := NewSelector([]string{"c", "a_qt", "b"})
	require.NoError(t, err)

	raw := wallet.Row{"a": 1, "b": 2, "c": 3, "unused": 9}
	derived := wallet.Row{"a_qt": 0.5}

	got, err := s.Select(raw, derived)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0.5, 2}, got)

	vec, err := s.SelectRow(raw, derived)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a_qt", "b"}, vec.Names)
	assert.Equal(t, got, vec.Values)
	assert.Equal(t, 3, s.Len())
}

func TestSelector_MissingColumnsInSchemaOrder(t *testing.T) {
	s, err := NewSelector([]string{"z", "a", "m"})
	require.NoError(t, err)

	_, err = s.Select(wallet.Row{"a": 1}, nil)
	require.ErrorIs(t, err, ErrMissingFeature)

	var missing *MissingFeatureError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"z", "m"}, missing.Columns)
}

func TestSelector_Collision(t *testing.T) {
	s, err := NewSelector([]string{"x"})
	require.NoError(t, err)

	_, err = s.Select(wallet.Row{"x": 1}, wallet.Row{"x": 2})
	assert.ErrorIs(t, err, ErrFeatureCollision)
}

func TestSelector_ValidateSchema(t *testing.T) {
	s, err := NewSelector([]string{"a", "a_qt"})
	require.NoError(t, err)

	assert.NoError(t, s.ValidateSchema([]string{"a", "b"}, []string{"a_qt"}))
	assert.ErrorIs(t, s.ValidateSchema([]string{"a"}, nil), ErrMissingFeature)
	assert.ErrorIs(t, s.ValidateSchema([]string{"a", "a_qt"}, []string{"a_qt"}), ErrFeatureCollision)
}

func TestDefaultSchema(t *testing.T) {
	schema := DefaultSchema()
	require.Len(t, schema, 58+1+24)
	assert.Equal(t, "repay_amount_sum_eth", schema[0])
	assert.Equal(t, "market_fastk", schema[57])
	assert.Equal(t, "repay_amount_sum_eth_qt", schema[58])
	assert.True(t, schema.Contains("first_tx_timestamp_hour_cos"))
	assert.False(t, schema.Contains("wallet_address"))

	s, err := NewSelector(schema)
	require.NoError(t, err)

	pre, err := NewPreprocessor(DefaultPreprocessorConfig())
	require.NoError(t, err)
	assert.NoError(t, s.ValidateSchema(wallet.NumericColumns(), pre.OutputNames()))
}

func TestDefaultSchema_SelectsSyntheticWallet(t *testing.T) {
	p := fittedPreprocessor(t)
	s, err := NewSelector(DefaultSchema())
	require.NoError(t, err)

	row := syntheticRows(1, 8)[0]
	derived, err := p.TransformRow(row)
	require.NoError(t, err)

	first, err := s.Select(row, derived)
	require.NoError(t, err)
	second, err := s.Select(row, derived)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, row["repay_amount_sum_eth"], first[0])
}
