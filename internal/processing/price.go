package processing

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var priceMarkers = strings.NewReplacer("₺", "", "TL", "", " ", "")

// ParsePrice converts a Turkish formatted price ("1.249,90 ₺") to a float.
// It returns 0 for anything it cannot read.
func ParsePrice(raw string) float64 {
	cleaned := priceMarkers.Replace(raw)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	if !strings.ContainsAny(cleaned, "0123456789") {
		return 0
	}

	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// DropPercent returns the percentage drop from last to current.
// ok is false unless current is strictly below a positive last price.
func DropPercent(last, current float64) (pct float64, ok bool) {
	if last <= 0 || current >= last {
		return 0, false
	}
	return (last - current) / last * 100, true
}

// RoundPercent rounds a percentage to two decimal places.
func RoundPercent(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatAmount renders a price Turkish style, e.g. 1249.99 -> "1.249,99".
func FormatAmount(v float64) string {
	fixed := decimal.NewFromFloat(v).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "," + frac
}

// FormatTRY is FormatAmount with the lira suffix.
func FormatTRY(v float64) string {
	return FormatAmount(v) + " TL"
}
