package utils

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{1, "$1.00"},
		{999.99, "$999.99"},
		{1000, "$1,000.00"},
		{1234567.89, "$1,234,567.89"},
		{100000, "$100,000.00"},
		{-42.5, "-$42.50"},
		{-1234567.89, "-$1,234,567.89"},
		{0.005, "$0.01"},
	}

	for _, tt := range tests {
		if got := FormatMoney(tt.amount); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{5.4, "+5.40%"},
		{0, "0.00%"},
		{-3.25, "-3.25%"},
		{100, "+100.00%"},
	}

	for _, tt := range tests {
		if got := FormatPercent(tt.pct); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"abc", 2, "ab"},
		{"héllo wörld", 8, "héllo..."},
		{"anything", 0, ""},
	}

	for _, tt := range tests {
		if got := Truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestFormatMoneyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Stripping the currency decoration recovers the amount to the cent.
	properties.Property("formatting round-trips through a plain parse", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(amount)
			plain := strings.NewReplacer("$", "", ",", "").Replace(formatted)
			parsed, err := strconv.ParseFloat(plain, 64)
			if err != nil {
				return false
			}
			diff := parsed - amount
			if diff < 0 {
				diff = -diff
			}
			return diff < 0.005+1e-9
		},
		gen.Float64Range(-1e12, 1e12),
	))

	// Every digit group between separators has exactly three digits.
	properties.Property("thousands groups are always three digits", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(amount)
			intPart := strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "$")
			intPart = strings.Split(intPart, ".")[0]
			groups := strings.Split(intPart, ",")
			for i, g := range groups {
				if i == 0 {
					if len(g) < 1 || len(g) > 3 {
						return false
					}
					continue
				}
				if len(g) != 3 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 1e12),
	))

	properties.TestingRun(t)
}
