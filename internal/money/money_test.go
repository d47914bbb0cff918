package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pricecore/internal/common"
)

func TestParseAndString(t *testing.T) {
	cases := map[string]string{
		"100":     "100.00",
		"100.5":   "100.50",
		"0.01":    "0.01",
		"-12.34":  "-12.34",
		" 7.00 ":  "7.00",
		"1234567": "1234567.00",
	}
	for in, want := range cases {
		m, err := Parse(in)
		require.NoError(t, err, in)
		require.Equal(t, want, m.String(), in)

		again, err := Parse(m.String())
		require.NoError(t, err)
		require.Equal(t, m, again, "round trip %s", in)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "1.005", "1e400", "90000000000000000"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, common.ErrInvalidAmount), in)
	}
}

func TestParseNonNegative(t *testing.T) {
	_, err := ParseNonNegative("-0.01")
	require.ErrorIs(t, err, common.ErrInvalidAmount)

	m, err := ParseNonNegative("0")
	require.NoError(t, err)
	require.True(t, m.IsZero())
}

func TestMulPercentRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount  string
		percent string
		want    string
	}{
		{"200.00", "18", "36.00"},
		{"180.00", "18", "32.40"},
		{"0.25", "10", "0.03"},  // 0.025 -> 0.03
		{"0.05", "50", "0.03"},  // 0.025 -> 0.03
		{"0.04", "50", "0.02"},
		{"10.01", "2.5", "0.25"}, // 0.25025
		{"-0.25", "10", "-0.03"},
	}
	for _, tc := range cases {
		got, err := MustParse(tc.amount).MulPercent(MustPercent(tc.percent))
		require.NoError(t, err)
		require.Equal(t, tc.want, got.String(), "%s x %s%%", tc.amount, tc.percent)
	}
}

func TestMulFactorAndInt(t *testing.T) {
	got, err := MustParse("99.99").MulFactor(MustFactor("1.15"))
	require.NoError(t, err)
	require.Equal(t, "114.99", got.String()) // 114.9885

	got, err = MustParse("100.00").MulInt(3)
	require.NoError(t, err)
	require.Equal(t, "300.00", got.String())

	_, err = MustParse("9000000000000.00").MulInt(1000)
	require.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestAllocateSumsExactly(t *testing.T) {
	weights := []Money{MustParse("100.00"), MustParse("100.00"), MustParse("100.00")}
	parts := MustParse("10.00").Allocate(weights)
	require.Equal(t, []string{"3.34", "3.33", "3.33"}, formatAll(parts))

	total, err := Sum(parts...)
	require.NoError(t, err)
	require.Equal(t, MustParse("10.00"), total)
}

func TestAllocateProRata(t *testing.T) {
	parts := MustParse("30.00").Allocate([]Money{MustParse("100.00"), MustParse("200.00"), Zero})
	require.Equal(t, []string{"10.00", "20.00", "0.00"}, formatAll(parts))

	neg := MustParse("-0.05").Allocate([]Money{MustParse("1.00"), MustParse("1.00")})
	require.Equal(t, []string{"-0.03", "-0.02"}, formatAll(neg))

	even := MustParse("0.05").Allocate([]Money{Zero, Zero})
	require.Equal(t, []string{"0.03", "0.02"}, formatAll(even))
}

func TestSplit(t *testing.T) {
	parts, err := MustParse("100.00").Split(3)
	require.NoError(t, err)
	require.Equal(t, []string{"33.34", "33.33", "33.33"}, formatAll(parts))

	_, err = MustParse("1.00").Split(0)
	require.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestJSON(t *testing.T) {
	type payload struct {
		Price Money   `json:"price"`
		Rate  Percent `json:"rate"`
	}
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"price": 12.30, "rate": "18"}`), &p))
	require.Equal(t, "12.30", p.Price.String())
	require.Equal(t, "18", p.Rate.String())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"price":"12.30","rate":"18"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"price": "1.999"}`), &p))
}

func TestUnmarshalRejectsNull(t *testing.T) {
	var p struct {
		Price Money `json:"price"`
	}
	err := json.Unmarshal([]byte(`{"price": null}`), &p)
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	require.True(t, p.Price.IsZero())
}

func TestPercentBounds(t *testing.T) {
	_, err := ParsePercent("100.01")
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = ParsePercent("-1")
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = ParseFactor("0")
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	require.Equal(t, "9", MustPercent("18").Half().String())
}

func formatAll(values []Money) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}
