package ledger

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	truthyTokens = map[string]bool{"TRUE": true, "VERDADEIRO": true, "SIM": true, "✓": true}
	falsyTokens  = map[string]bool{"FALSE": true, "FALSO": true, "NAO": true, "NÃO": true, "NO": true, "X": true}
)

// Normalize coerces the canonical truthy/falsy tokens (in English, Portuguese
// or as check marks) to booleans. Any other string is returned verbatim.
func Normalize(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	key := canonical(s)
	switch {
	case truthyTokens[key]:
		return true
	case falsyTokens[key]:
		return false
	default:
		return s
	}
}

// IsTruthy reports whether a stored cell reads as a set flag.
func IsTruthy(v string) bool {
	b, ok := Normalize(v).(bool)
	return ok && b
}

func canonical(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Upper(language.BrazilianPortuguese).String(s)
}
