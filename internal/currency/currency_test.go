package currency

import (
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParse_SeparatorHeuristic(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		// both separators: later one wins as decimal point
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"1.234.567,89", 1234567.89, true},
		{"1,234,567.89", 1234567.89, true},
		// comma only: decimal iff exactly two trailing chars
		{"12,34", 12.34, true},
		{"12,345", 12345.0, true},
		{"12,3", 123.0, true},
		// dot only / neither
		{"1234.56", 1234.56, true},
		{"1299", 1299.0, true},
		// currency noise is stripped
		{"$ 1,234.56", 1234.56, true},
		{"1.234,56 €", 1234.56, true},
		{"PRICE: 9.99 USD", 9.99, true},
		// negatives survive the strip
		{"-12,34", -12.34, true},
		// garbage
		{"", 0, false},
		{"free shipping", 0, false},
		{"-", 0, false},
	}

	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if ok != tc.ok {
			t.Fatalf("Parse(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
		if ok && !almostEqual(got, tc.want) {
			t.Fatalf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestToFloat_DegradesToZero(t *testing.T) {
	if got := ToFloat("not a price"); got != 0.0 {
		t.Fatalf("ToFloat(garbage) = %v, want 0.0", got)
	}
	if got := ToFloat("1.234,56"); !almostEqual(got, 1234.56) {
		t.Fatalf("ToFloat = %v, want 1234.56", got)
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(9.995); !almostEqual(got, 10.0) {
		t.Fatalf("Round2(9.995) = %v", got)
	}
	if got := Round2(9.994); !almostEqual(got, 9.99) {
		t.Fatalf("Round2(9.994) = %v", got)
	}
}

func TestToString_FallsBackOnUnknownInputs(t *testing.T) {
	// Unknown ISO code keeps the amount readable.
	if got := ToString(12.3, "en", "XXX?"); !strings.Contains(got, "12.30") {
		t.Fatalf("ToString fallback = %q, want it to contain 12.30", got)
	}
	// Valid locale and currency produce a non-empty formatted string
	// containing the rounded amount digits.
	got := ToString(1234.5, "en-US", "USD")
	if got == "" || !strings.ContainsAny(got, "0123456789") {
		t.Fatalf("ToString = %q, want formatted money", got)
	}
}

func TestToString_RoundTripApproximate(t *testing.T) {
	// Only this direction is promised: ToFloat(ToString(x)) ~ x.
	for _, v := range []float64{0.99, 10.0, 1234.56} {
		s := ToString(v, "en-US", "USD")
		back, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(ToString(%v)) failed on %q", v, s)
		}
		if math.Abs(back-v) > 0.01 {
			t.Fatalf("round trip %v -> %q -> %v drifted", v, s, back)
		}
	}
}
