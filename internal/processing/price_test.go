package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/processing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "decimal comma", input: "84,90 ₺", want: 84.90},
		{name: "thousands period", input: "1.249,90 ₺", want: 1249.90},
		{name: "nbsp before symbol", input: "12,50 ₺", want: 12.50},
		{name: "tl suffix", input: "12,99 TL", want: 12.99},
		{name: "plain integer", input: "35", want: 35},
		{name: "surrounding whitespace", input: "  7,05 ₺\n", want: 7.05},
		{name: "empty", input: "", want: 0},
		{name: "no digits", input: "Tükendi", want: 0},
		{name: "currency only", input: "₺", want: 0},
		{name: "garbage with digits", input: "3 adet 2,5", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, processing.ParsePrice(tt.input), 1e-9)
		})
	}
}

func TestParsePriceSwapsSeparators(t *testing.T) {
	for _, whole := range []int{0, 7, 42, 999} {
		for _, cents := range []int{0, 5, 99} {
			want := float64(whole) + float64(cents)/100
			require.InDelta(t, want, processing.ParsePrice(fmtTR(whole, cents)), 1e-9)
		}
	}
	require.InDelta(t, 12345.67, processing.ParsePrice("12.345,67 ₺"), 1e-9)
}

func TestDropPercent(t *testing.T) {
	pct, ok := processing.DropPercent(100, 90)
	require.True(t, ok)
	require.InDelta(t, 10.0, pct, 1e-9)

	_, ok = processing.DropPercent(100, 100)
	require.False(t, ok)

	_, ok = processing.DropPercent(100, 120)
	require.False(t, ok)

	_, ok = processing.DropPercent(0, 10)
	require.False(t, ok)
}

func TestRoundPercent(t *testing.T) {
	require.Equal(t, 4.0, processing.RoundPercent(4.000000000000001))
	require.Equal(t, 5.0, processing.RoundPercent(4.996))
	require.Equal(t, 12.35, processing.RoundPercent(12.3456))
}

func TestFormatTRY(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 1249.99, want: "1.249,99 TL"},
		{in: 84.9, want: "84,90 TL"},
		{in: 0.5, want: "0,50 TL"},
		{in: 1000000, want: "1.000.000,00 TL"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, processing.FormatTRY(tt.in))
	}
	require.Equal(t, "-12,50", processing.FormatAmount(-12.5))
}

func fmtTR(whole, cents int) string {
	return processing.FormatAmount(float64(whole)+float64(cents)/100) + " ₺"
}
