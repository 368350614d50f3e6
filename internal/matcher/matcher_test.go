package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesEquivalent(t *testing.T) {
	tests := []struct {
		ref, code string
		want      bool
	}{
		{"12", "12", true},
		{"12", "21", false},
		{"007", "7", true},
		{"7", "007", true},
		{"07", "7", true},
		{"0007", "7", false},
		{"7", "0007", false},
		{"0123", "00123", true},
		{"123", "1230", false},
		{"", "", true},
		{"", "7", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref+"~"+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, CodesEquivalent(tt.ref, tt.code))
		})
	}
}

func TestCatalogCode(t *testing.T) {
	assert.Equal(t, "00123", CatalogCode("CADEIRA LUNA (00123) *(Sugestão)"))
	assert.Equal(t, "55", CatalogCode("MESA (12) TAMPO (55)"))
	assert.Equal(t, "", CatalogCode("MESA SEM CODIGO"))
	assert.Equal(t, "", CatalogCode("MESA (A12)"))
}

func TestShouldAutoLink(t *testing.T) {
	assert.True(t, ShouldAutoLink("CADEIRA LUNA (7) *(Sugestão)", "007"))
	assert.False(t, ShouldAutoLink("CADEIRA LUNA (7)", "007"), "no suggestion marker")
	assert.False(t, ShouldAutoLink("CADEIRA LUNA (7) *(Sugestão)", ""), "empty reference")
	assert.False(t, ShouldAutoLink("CADEIRA LUNA (7) *(Sugestão)", "0007"), "padding gap too large")
	assert.False(t, ShouldAutoLink("CADEIRA LUNA *(Sugestão)", "7"), "no catalog code")
	assert.False(t, ShouldAutoLink("CADEIRA LUNA *(Sugestão)", "0"), "zero reference without catalog code")
	assert.False(t, ShouldAutoLink("CADEIRA LUNA *(Sugestão)", "00"), "zero reference without catalog code")
}
