package matching

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 价格用定点整数表示，避免浮点比较：1 tick = 1/PriceScale
const (
	PriceDecimals = 4
	PriceScale    = 10000
)

// Price 定点价格，单位 tick
type Price int64

var (
	ErrPriceFormat    = errors.New("price: not a decimal number")
	ErrPricePrecision = fmt.Errorf("price: more than %d fractional digits", PriceDecimals)
	ErrPriceRange     = errors.New("price: out of range")
)

var priceMax = decimal.NewFromInt(1 << 62).Shift(-PriceDecimals)

// ParsePrice 把 "101.5" 这样的字符串解析为定点价格。
// 超过 PriceDecimals 位小数直接报错，不做四舍五入。
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrPriceFormat, s)
	}
	return PriceFromDecimal(d)
}

// MustPrice is ParsePrice for literals; it panics on bad input.
func MustPrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PriceFromDecimal converts an exact decimal into ticks.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	if d.Abs().GreaterThan(priceMax) {
		return 0, ErrPriceRange
	}
	ticks := d.Shift(PriceDecimals)
	if !ticks.Equal(ticks.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrPricePrecision, d.String())
	}
	return Price(ticks.IntPart()), nil
}

// Decimal 转回十进制，用于展示和点差计算
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -PriceDecimals)
}

// String 至少保留两位小数：100 -> "100.00"，101.125 -> "101.125"
func (p Price) String() string {
	d := p.Decimal()
	if d.Equal(d.Truncate(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// MarshalText JSON 里价格输出成十进制字符串
func (p Price) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Price) UnmarshalText(b []byte) error {
	v, err := ParsePrice(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
