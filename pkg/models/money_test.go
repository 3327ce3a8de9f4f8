package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoneyMilliunitsRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		milli int64
	}{
		{"0", 0},
		{"-50.00", -50000},
		{"50.00", 50000},
		{"+50.00", 50000},
		{"12.345", 12345},
		{"-12.345", -12345},
		{"0.001", 1},
		{"-0.001", -1},
		{"1234567.89", 1234567890},
		{".5", 500},
	}
	for _, c := range cases {
		m, err := ParseMoney(c.in, "EUR")
		require.NoError(t, err, c.in)
		assert.Equal(t, c.milli, m.Milliunits(), c.in)

		back := MoneyFromMilliunits(m.Milliunits(), "EUR")
		assert.True(t, m.Equal(back), "round trip for %s", c.in)
	}
}

func TestParseMoneyRejectsSubMilliPrecision(t *testing.T) {
	_, err := ParseMoney("1.0001", "EUR")
	assert.Error(t, err)

	_, err = ParseMoney("", "EUR")
	assert.Error(t, err)

	_, err = ParseMoney("abc", "EUR")
	assert.Error(t, err)
}

func TestMoneyString(t *testing.T) {
	m, _ := ParseMoney("-50.00", "EUR")
	assert.Equal(t, "-50.00 EUR", m.String())

	m, _ = ParseMoney("12.345", "")
	assert.Equal(t, "12.345", m.String())
}

func TestMoneyAddCurrencyMismatch(t *testing.T) {
	a, _ := ParseMoney("1.00", "EUR")
	b, _ := ParseMoney("1.00", "USD")
	_, err := a.Add(b)
	assert.Error(t, err)

	c, _ := ParseMoney("2.50", "EUR")
	sum, err := a.Add(c)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), sum.Milliunits())
}

func TestMoneyWithinBasisPoints(t *testing.T) {
	a, _ := ParseMoney("-100.00", "EUR")
	b, _ := ParseMoney("-100.99", "EUR")
	c, _ := ParseMoney("-101.01", "EUR")

	// 100 bp == 1%
	assert.True(t, a.WithinBasisPoints(b, 100))
	assert.False(t, a.WithinBasisPoints(c, 100))
	assert.True(t, a.WithinBasisPoints(a, 0))
}
