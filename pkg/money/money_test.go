package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMinor(t *testing.T) {
	cases := []struct {
		in       string
		currency string
		expected int64
	}{
		{"45.00", "AUD", 4500},
		{"45", "aud", 4500},
		{"19.995", "USD", 2000},
		{"1500", "JPY", 1500},
		{"1.234", "KWD", 1234},
		{"", "AUD", 0},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.in, tc.currency)
		if err != nil {
			t.Fatalf("ParseMinor(%q) error: %v", tc.in, err)
		}
		if got != tc.expected {
			t.Fatalf("ParseMinor(%q, %s) expected %d, got %d", tc.in, tc.currency, tc.expected, got)
		}
	}

	if _, err := ParseMinor("abc", "AUD"); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(4500, "AUD"); got != "45.00" {
		t.Fatalf("Format AUD = %s", got)
	}
	if got := Format(1500, "JPY"); got != "1500" {
		t.Fatalf("Format JPY = %s", got)
	}
	if got := Format(-5, "USD"); got != "-0.05" {
		t.Fatalf("Format negative = %s", got)
	}
}

func TestRatio(t *testing.T) {
	if !Ratio(1, 4).Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("Ratio(1,4) = %s", Ratio(1, 4))
	}
	if !Ratio(5, 0).IsZero() {
		t.Fatalf("Ratio with zero whole should be zero")
	}
}
