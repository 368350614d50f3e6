// Package matcher reconciles supplier product references against the remote
// catalog numbering.
package matcher

import (
	"regexp"
	"strings"
)

// SuggestionMarker is appended by the remote system to product names it
// proposes as a match for an unlinked line item.
const SuggestionMarker = "*(Sugestão)"

// maxLeadingZeros bounds how much zero padding may differ between the two
// numbering schemes before a match is rejected.
const maxLeadingZeros = 2

var catalogCodeRe = regexp.MustCompile(`\((\d+)\)`)

// CodesEquivalent reports whether a supplier reference and a catalog code
// name the same product. Exact matches always succeed; otherwise the codes
// must be equal once leading zeros are stripped, and one side must have had
// one or two leading zeros.
func CodesEquivalent(ref, code string) bool {
	if ref == code {
		return true
	}
	strippedRef := strings.TrimLeft(ref, "0")
	strippedCode := strings.TrimLeft(code, "0")
	if strippedRef != strippedCode {
		return false
	}
	return withinPadding(len(ref)-len(strippedRef)) || withinPadding(len(code)-len(strippedCode))
}

func withinPadding(zeros int) bool {
	return zeros > 0 && zeros <= maxLeadingZeros
}

// CatalogCode extracts the catalog code from a product label such as
// "CADEIRA LUNA (00123) *(Sugestão)". The last parenthesised digit group wins.
// Returns "" when the label carries no code.
func CatalogCode(product string) string {
	matches := catalogCodeRe.FindAllStringSubmatch(product, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

// ShouldAutoLink decides whether a suggested catalog entry can be accepted
// without human input.
func ShouldAutoLink(product, ref string) bool {
	if ref == "" || !strings.Contains(product, SuggestionMarker) {
		return false
	}
	code := CatalogCode(product)
	if code == "" {
		return false
	}
	return CodesEquivalent(ref, code)
}
