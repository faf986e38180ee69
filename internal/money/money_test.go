package money

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAdd(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want string
	}{
		{"decimal fractions stay exact", "0.1", "0.2", "0.30"},
		{"negative operand", "10.00", "-2.50", "7.50"},
		{"rounds half up", "1.004", "0.001", "1.01"},
		{"zero identity", "99.99", "0", "99.99"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Add(tc.a, tc.b, 2)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAddRejectsNonNumericInput(t *testing.T) {
	_, err := Add("abc", "1.00", 2)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Add("1.00", "", 2)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSubAndMul(t *testing.T) {
	got, err := Sub("10.00", "3.33", 2)
	require.NoError(t, err)
	require.Equal(t, "6.67", got)

	got, err = Mul("19.99", "3", 2)
	require.NoError(t, err)
	require.Equal(t, "59.97", got)

	got, err = Mul("0.105", "2", 2)
	require.NoError(t, err)
	require.Equal(t, "0.21", got)
}

func TestDivByZero(t *testing.T) {
	_, err := Div("10.00", "0", 2)
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Div("10.00", "0.00", 2)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestDiv(t *testing.T) {
	got, err := Div("10.00", "3", 2)
	require.NoError(t, err)
	require.Equal(t, "3.33", got)

	got, err = Div("1", "3", 6)
	require.NoError(t, err)
	require.Equal(t, "0.333333", got)
}

func TestSumGuardsIntermediatePrecision(t *testing.T) {
	got, err := Sum([]string{"1.11", "2.22", "3.33"}, 2)
	require.NoError(t, err)
	require.Equal(t, "6.66", got)

	// Many small thirds only round once at the end.
	thirds := make([]string, 30)
	for i := range thirds {
		thirds[i] = "0.333333"
	}
	got, err = Sum(thirds, 2)
	require.NoError(t, err)
	require.Equal(t, "10.00", got)
}

func TestRoundHalfUp(t *testing.T) {
	got, err := Round("2.345", 2)
	require.NoError(t, err)
	require.Equal(t, "2.35", got)

	got, err = Round("2.344", 2)
	require.NoError(t, err)
	require.Equal(t, "2.34", got)
}

func TestPercent(t *testing.T) {
	got, err := Percent("200.00", "15", 2)
	require.NoError(t, err)
	require.Equal(t, "30.00", got)

	got, err = Percent("33.33", "10", 2)
	require.NoError(t, err)
	require.Equal(t, "3.33", got)
}

func TestComparisons(t *testing.T) {
	eq, err := Equal("1.50", "1.5")
	require.NoError(t, err)
	require.True(t, eq)

	gt, err := GreaterThan("2.00", "1.99")
	require.NoError(t, err)
	require.True(t, gt)

	lt, err := LessThan("-0.01", "0.00")
	require.NoError(t, err)
	require.True(t, lt)
}

func TestCentsRoundTrip(t *testing.T) {
	cents, err := ToCents("12.34")
	require.NoError(t, err)
	require.Equal(t, int64(1234), cents)
	require.Equal(t, "12.34", FromCents(1234))
}

func TestNegativeScaleFallsBackToDefault(t *testing.T) {
	got, err := Add("1.005", "0", -1)
	require.NoError(t, err)
	require.Equal(t, "1.01", got)
	require.Equal(t, "0.00", Zero(-3))
}

func TestAddCommutative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := FromCents(rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "a"))
		b := FromCents(rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "b"))
		ab, err := Add(a, b, 2)
		require.NoError(t, err)
		ba, err := Add(b, a, 2)
		require.NoError(t, err)
		require.Equal(t, ab, ba)
	})
}

func TestSumMatchesSequentialAdd(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		values := make([]string, n)
		for i := range values {
			values[i] = FromCents(rapid.Int64Range(0, 100_000).Draw(t, "v"))
		}
		total, err := Sum(values, 2)
		require.NoError(t, err)

		// Cent-exact inputs accumulate identically either way.
		acc := Zero(2)
		for _, v := range values {
			acc, err = Add(acc, v, 2)
			require.NoError(t, err)
		}
		require.Equal(t, acc, total)
	})
}

func TestCentsRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Int64Range(-10_000_000, 10_000_000).Draw(t, "cents")
		back, err := ToCents(FromCents(c))
		require.NoError(t, err)
		require.Equal(t, c, back)
	})
}
