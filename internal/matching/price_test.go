package matching

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    Price
		wantErr error
	}{
		{in: "100", want: 1_000_000},
		{in: "101.5", want: 1_015_000},
		{in: "0.0001", want: 1},
		{in: "102.00", want: 1_020_000},
		{in: "-3", want: -30_000},
		{in: "100.00001", wantErr: ErrPricePrecision},
		{in: "abc", wantErr: ErrPriceFormat},
		{in: "", wantErr: ErrPriceFormat},
		{in: "1e30", wantErr: ErrPriceRange},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrice_EqualLookingPricesAreEqual(t *testing.T) {
	// 浮点下 0.1+0.2 != 0.3；定点下必须相等
	a, err := PriceFromDecimal(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2")))
	require.NoError(t, err)
	assert.Equal(t, MustPrice("0.3"), a)
	assert.Equal(t, MustPrice("101.50"), MustPrice("101.5"))
}

func TestPrice_String(t *testing.T) {
	assert.Equal(t, "100.00", MustPrice("100").String())
	assert.Equal(t, "101.50", MustPrice("101.5").String())
	assert.Equal(t, "101.125", MustPrice("101.125").String())
	assert.Equal(t, "0.0001", Price(1).String())
}

func TestSide(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, "BUY", Buy.String())
	assert.False(t, Side(0).Valid())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)
	s, err = ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)
	_, err = ParseSide("hold")
	assert.Error(t, err)
}

func TestPriceText(t *testing.T) {
	b, err := MustPrice("101.5").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "101.50", string(b))

	var p Price
	require.NoError(t, p.UnmarshalText([]byte("99.25")))
	assert.Equal(t, MustPrice("99.25"), p)
	assert.Error(t, p.UnmarshalText([]byte("x")))
}
