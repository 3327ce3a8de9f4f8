package comdirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveLineNumberPrefixes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"single prefixed line", "01REWE SAGT DANKE", "REWE SAGT DANKE"},
		{"multi line", "01REWE SAGT DANKE\n02FILIALE 1234", "REWE SAGT DANKE\nFILIALE 1234"},
		{"decimal amount untouched", "01Betrag 12.50 EUR", "Betrag 12.50 EUR"},
		{"number then space untouched", "12 Raten", "12 Raten"},
		{"number then punctuation untouched", "12.34", "12.34"},
		{"prefix not at line start untouched", "Rechnung 01April", "Rechnung 01April"},
		{"digit after digits untouched", "0101Abc", "0101Abc"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, RemoveLineNumberPrefixes(c.in))
		})
	}
}

func TestRemoveLineNumberPrefixesIdempotent(t *testing.T) {
	in := "01Mietzahlung Maerz\n02Wohnung 4b\n03Danke"
	once := RemoveLineNumberPrefixes(in)
	assert.Equal(t, once, RemoveLineNumberPrefixes(once))
}
