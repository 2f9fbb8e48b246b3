package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// 金额统一以最小货币单位（分）的 int64 存储。
// 平台接口返回的是主单位的十进制字符串（如 "45.00"），在此按币种精度换算。

var currencyExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"ISK": 0,
	"CLP": 0,
	"BHD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// Exponent 返回币种的小数位数，未知币种按 2 位处理
func Exponent(currency string) int32 {
	if exp, ok := currencyExponent[NormalizeCurrency(currency)]; ok {
		return exp
	}
	return 2
}

func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ToMinor 主单位金额换算为最小单位，四舍五入
func ToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// ParseMinor 解析主单位金额字符串
func ParseMinor(s, currency string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("金额格式错误 %q: %w", s, err)
	}
	return ToMinor(d, currency), nil
}

// Format 最小单位金额格式化为主单位字符串
func Format(minor int64, currency string) string {
	exp := Exponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}

// Ratio 计算 part/whole，whole 为 0 时返回 0
func Ratio(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Div(decimal.NewFromInt(whole))
}

func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
