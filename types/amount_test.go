package types_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felipemeriga/artemis/types"
)

func TestNewAmountRejectsNonFinite(t *testing.T) {
	_, err := types.NewAmount(math.NaN())
	assert.ErrorIs(t, err, types.ErrNonFiniteAmount)

	_, err = types.NewAmount(math.Inf(1))
	assert.ErrorIs(t, err, types.ErrNonFiniteAmount)

	_, err = types.NewAmount(math.Inf(-1))
	assert.ErrorIs(t, err, types.ErrNonFiniteAmount)
}

func TestNewAmountRejectsNegative(t *testing.T) {
	_, err := types.NewAmount(-0.01)
	assert.ErrorIs(t, err, types.ErrNegativeAmount)
}

func TestAmountTotalOrder(t *testing.T) {
	a := types.MustAmount(0.1)
	b := types.MustAmount(0.5)
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, a.Equal(types.MustAmount(0.1)))
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := types.MustAmount(5.0)
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "5", string(data))

	var decoded types.Amount
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, decoded.Equal(a))
}

func TestAmountUnmarshalRejectsNegative(t *testing.T) {
	var a types.Amount
	err := a.UnmarshalJSON([]byte("-1"))
	assert.ErrorIs(t, err, types.ErrNegativeAmount)
}
