package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_LowercasesAndCollapses(t *testing.T) {
	assert.Equal(t, "massachusetts general hospital", Key("  Massachusetts   General Hospital "))
}

func TestKey_StripsPunctuation(t *testing.T) {
	assert.Equal(t, "saint jude children s research hospital",
		Key("St. Jude Children's Research Hospital"))
}

func TestKey_ExpandsAbbreviations(t *testing.T) {
	assert.Equal(t, Key("Seoul National University Hospital"), Key("Seoul Natl Univ Hosp"))
}

func TestKey_FoldsDiacritics(t *testing.T) {
	assert.Equal(t, Key("Hopital Universitaire"), Key("Hôpital Universitaire"))
	assert.Equal(t, "hospital universitario la paz", Key("Hospital Universitario La Paz"))
}

func TestKey_EmptyInputSentinel(t *testing.T) {
	assert.Equal(t, UnknownKey, Key(""))
	assert.Equal(t, UnknownKey, Key("   "))
	assert.Equal(t, UnknownKey, Key("--- ..."))
}

func TestKey_Deterministic(t *testing.T) {
	in := "Hôpital St. Louis — Dépt. d'Oncologie"
	assert.Equal(t, Key(in), Key(in))
}

func TestCountryKey(t *testing.T) {
	assert.Equal(t, "united states", CountryKey(" United   States "))
	assert.Equal(t, "korea, republic of", CountryKey("Korea, Republic of"))
	assert.Equal(t, UnknownKey, CountryKey(""))
}
