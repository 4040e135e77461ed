package fp_test

import (
	"math"
	"testing"

	"MarginCore/internal/fp"
)

func TestFromInt64_RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 1_000_000_000, -1_000_000_000} {
		got := fp.FromInt64(v).Int64()
		if got != v {
			t.Errorf("FromInt64(%d).Int64() = %d", v, got)
		}
	}
}

func TestFromMicros(t *testing.T) {
	// 1_500_000 micros = 1.5
	v := fp.FromMicros(1_500_000)
	if !v.Equal(fp.FromInt64(3).DivInt(2)) {
		t.Errorf("FromMicros(1_500_000) = %s, want 1.5", v)
	}

	neg := fp.FromMicros(-2_250_000)
	want := fp.FromInt64(-9).DivInt(4)
	if !neg.Equal(want) {
		t.Errorf("FromMicros(-2_250_000) = %s, want -2.25", neg)
	}
}

func TestZeroValue(t *testing.T) {
	var z fp.Fixed
	if !z.IsZero() {
		t.Error("zero value should be zero")
	}
	if !z.Add(fp.FromInt64(5)).Equal(fp.FromInt64(5)) {
		t.Error("zero value should be usable in arithmetic")
	}
	if !z.Equal(fp.Zero) {
		t.Error("zero value should equal fp.Zero")
	}
}

func TestMulDiv(t *testing.T) {
	a := fp.FromInt64(6)
	b := fp.FromInt64(7)
	if got := a.Mul(b).Int64(); got != 42 {
		t.Errorf("6*7 = %d", got)
	}

	half := fp.FromInt64(1).DivInt(2)
	if got := fp.FromInt64(10).Mul(half).Int64(); got != 5 {
		t.Errorf("10*0.5 = %d", got)
	}

	if got := fp.FromInt64(42).Div(fp.FromInt64(7)).Int64(); got != 6 {
		t.Errorf("42/7 = %d", got)
	}

	// Truncation toward zero.
	if got := fp.FromInt64(-7).Div(fp.FromInt64(2)); got.Int64() != -3 {
		t.Errorf("-7/2 truncated = %d, want -3", got.Int64())
	}
}

func TestFloorCeil(t *testing.T) {
	v := fp.FromMicros(2_500_000) // 2.5
	if v.Floor() != 2 {
		t.Errorf("floor(2.5) = %d", v.Floor())
	}
	if v.Ceil() != 3 {
		t.Errorf("ceil(2.5) = %d", v.Ceil())
	}

	n := fp.FromMicros(-2_500_000) // -2.5
	if n.Floor() != -3 {
		t.Errorf("floor(-2.5) = %d", n.Floor())
	}
	if n.Ceil() != -2 {
		t.Errorf("ceil(-2.5) = %d", n.Ceil())
	}
}

func TestMinMaxCmp(t *testing.T) {
	a := fp.FromInt64(3)
	b := fp.FromInt64(5)
	if !fp.Min(a, b).Equal(a) {
		t.Error("Min(3,5) != 3")
	}
	if !fp.Max(a, b).Equal(b) {
		t.Error("Max(3,5) != 5")
	}
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Error("Cmp ordering wrong")
	}
}

func TestDecimalString(t *testing.T) {
	cases := []struct {
		micros int64
		want   string
	}{
		{0, "0.000000000000"},
		{1_000_000, "1.000000000000"},
		{1_500_000, "1.500000000000"},
		{-2_250_000, "-2.250000000000"},
		{123_456, "0.123456000000"},
	}
	for _, tc := range cases {
		got := fp.FromMicros(tc.micros).DecimalString()
		if got != tc.want {
			t.Errorf("DecimalString(%d micros) = %q, want %q", tc.micros, got, tc.want)
		}
	}

	// Large values keep full integer precision, unlike the float String form.
	big := fp.FromInt64(1_234_567_890_123).Add(fp.FromMicros(500_000))
	if got := big.DecimalString(); got != "1234567890123.500000000000" {
		t.Errorf("large DecimalString = %q", got)
	}
}

func TestDecimalString_MicrosRoundTrip(t *testing.T) {
	// Wire amounts arrive micro-scaled and are persisted via DecimalString;
	// the rendered decimal must read back as the original micros.
	cases := []struct {
		micros int64
		want   string
	}{
		{1, "0.000001000000"},
		{-1, "-0.000001000000"},
		{999_999, "0.999999000000"},
		{-999_999, "-0.999999000000"},
		{123_456_789, "123.456789000000"},
		{-123_456_789, "-123.456789000000"},
	}
	for _, tc := range cases {
		got := fp.FromMicros(tc.micros).DecimalString()
		if got != tc.want {
			t.Errorf("DecimalString(%d micros) = %q, want %q", tc.micros, got, tc.want)
		}
	}
}

func TestDecimalString_RoundsLastDigit(t *testing.T) {
	ulp := fp.FromInt64(1).DivInt(1 << 48)

	// One ulp below an integer rounds up to it, carrying into the integer
	// part; one ulp above rounds back down.
	if got := fp.FromInt64(1).Sub(ulp).DecimalString(); got != "1.000000000000" {
		t.Errorf("DecimalString(1 - ulp) = %q, want carry to 1", got)
	}
	if got := fp.FromInt64(-1).Add(ulp).DecimalString(); got != "-1.000000000000" {
		t.Errorf("DecimalString(-1 + ulp) = %q, want carry to -1", got)
	}
	if got := fp.FromInt64(1).Add(ulp).DecimalString(); got != "1.000000000000" {
		t.Errorf("DecimalString(1 + ulp) = %q", got)
	}
	if got := ulp.DecimalString(); got != "0.000000000000" {
		t.Errorf("DecimalString(ulp) = %q", got)
	}
}

func TestCheckRange(t *testing.T) {
	if err := fp.FromInt64(math.MaxInt64).CheckRange(); err != nil {
		t.Errorf("max int64 should be in range: %v", err)
	}

	// 2^90 exceeds the 80 integer bits of the persisted layout.
	huge := fp.FromInt64(1 << 62).MulInt(1 << 30)
	if err := huge.CheckRange(); err == nil {
		t.Error("2^92 should be out of range")
	}
}

func TestAddI64_Overflow(t *testing.T) {
	if _, err := fp.AddI64(math.MaxInt64, 1); err == nil {
		t.Error("expected overflow")
	}
	if _, err := fp.AddI64(math.MinInt64, -1); err == nil {
		t.Error("expected overflow")
	}
	got, err := fp.AddI64(40, 2)
	if err != nil || got != 42 {
		t.Errorf("AddI64(40,2) = %d, %v", got, err)
	}
}

func TestSubI64_Overflow(t *testing.T) {
	if _, err := fp.SubI64(math.MinInt64, 1); err == nil {
		t.Error("expected overflow")
	}
	got, err := fp.SubI64(10, 15)
	if err != nil || got != -5 {
		t.Errorf("SubI64(10,15) = %d, %v", got, err)
	}
}

func TestMulI64_Overflow(t *testing.T) {
	if _, err := fp.MulI64(math.MinInt64, -1); err == nil {
		t.Error("MinInt64 * -1 must overflow")
	}
	if _, err := fp.MulI64(math.MaxInt64, 2); err == nil {
		t.Error("expected overflow")
	}
	got, err := fp.MulI64(-6, 7)
	if err != nil || got != -42 {
		t.Errorf("MulI64(-6,7) = %d, %v", got, err)
	}
}

func TestRoundedDiv(t *testing.T) {
	cases := []struct {
		a, b, c int64
		want    int64
	}{
		{10, 3, 4, 8},   // 30/4 = 7.5 rounds away to 8
		{-10, 3, 4, -8}, // -7.5 rounds away to -8
		{7, 1, 2, 4},    // 3.5 -> 4
		{-7, 1, 2, -4},  // -3.5 -> -4
		{10, 2, 5, 4},   // exact
		{1, 1, 3, 0},    // 0.33 -> 0
		{2, 1, 3, 1},    // 0.66 -> 1
	}
	for _, tc := range cases {
		got, err := fp.RoundedDiv(tc.a, tc.b, tc.c)
		if err != nil {
			t.Fatalf("RoundedDiv(%d,%d,%d): %v", tc.a, tc.b, tc.c, err)
		}
		if got != tc.want {
			t.Errorf("RoundedDiv(%d,%d,%d) = %d, want %d", tc.a, tc.b, tc.c, got, tc.want)
		}
	}

	if _, err := fp.RoundedDiv(1, 1, 0); err == nil {
		t.Error("division by zero should error")
	}
	if _, err := fp.RoundedDiv(math.MaxInt64, math.MaxInt64, 1); err == nil {
		t.Error("expected overflow")
	}
}
