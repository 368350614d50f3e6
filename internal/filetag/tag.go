// Package filetag implements the filename-tag state machine of the local
// document cache. A cached file moves from untagged to a temporary tag when
// its import is confirmed and to the final tag once the run completes.
package filetag

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// ErrInvalidTransition is returned when a rename would move a file backwards
// or skip a state.
var ErrInvalidTransition = errors.New("invalid tag transition")

// Tag is the lifecycle marker embedded in a cached filename.
type Tag string

// Tags written by this program. Legacy spellings are accepted on read.
const (
	Untagged           Tag = ""
	DoneTmp            Tag = "DONE_TMP"
	AlreadyImportedTmp Tag = "ALREADY_IMPORTED_TMP"
	Done               Tag = "DONE"
)

var legacyTags = map[string]Tag{
	"FEITO_TMP":        DoneTmp,
	"JA_IMPORTADO_TMP": AlreadyImportedTmp,
	"FEITO":            Done,
}

// Transition table: from -> allowed tos
var validTransitions = map[Tag][]Tag{
	Untagged:           {DoneTmp, AlreadyImportedTmp},
	DoneTmp:            {Done},
	AlreadyImportedTmp: {Done},
	Done:               {},
}

var (
	tagPattern   = regexp.MustCompile(`(?i)\s*\((DONE_TMP|ALREADY_IMPORTED_TMP|DONE|FEITO_TMP|JA_IMPORTADO_TMP|FEITO)\)\s*$`)
	leadingDigit = regexp.MustCompile(`^\d+`)
)

// IsTemp reports whether the tag marks an import confirmed by a run that has
// not been finalised yet.
func (t Tag) IsTemp() bool {
	return t == DoneTmp || t == AlreadyImportedTmp
}

// CanTransition checks if renaming from one tag to another is valid.
func CanTransition(from, to Tag) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == to {
			return true
		}
	}
	return false
}

// Transition validates a tag change.
func Transition(from, to Tag) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q to %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// TagFor maps an import outcome to its temporary tag.
func TagFor(outcome types.Outcome) (Tag, error) {
	switch outcome {
	case types.OutcomeOK:
		return DoneTmp, nil
	case types.OutcomeAlreadyDone:
		return AlreadyImportedTmp, nil
	default:
		return Untagged, fmt.Errorf("%w: outcome %s has no tag", ErrInvalidTransition, outcome)
	}
}

// Entry is one cached XML file.
type Entry struct {
	Name string // current filename
	Base string // filename with any tag removed
	Tag  Tag
	ID   string
}

// Parse splits a filename into its untagged base and tag. ok is false for
// names that are not XML documents.
func Parse(name string) (Entry, bool) {
	ext := filepath.Ext(name)
	if !strings.EqualFold(ext, ".xml") {
		return Entry{}, false
	}
	stem := strings.TrimSuffix(name, ext)

	tag := Untagged
	if m := tagPattern.FindStringSubmatch(stem); m != nil {
		raw := strings.ToUpper(m[1])
		if legacy, ok := legacyTags[raw]; ok {
			tag = legacy
		} else {
			tag = Tag(raw)
		}
		stem = stem[:len(stem)-len(m[0])]
	}

	base := strings.TrimSpace(stem) + ext
	return Entry{Name: name, Base: base, Tag: tag, ID: Identifier(base)}, true
}

// Identifier returns the invoice number encoded as the leading digits of a
// filename, or the name without extension when it has none.
func Identifier(name string) string {
	if id := leadingDigit.FindString(name); id != "" {
		return id
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Tagged returns the filename of base carrying tag.
func Tagged(base string, tag Tag) string {
	if tag == Untagged {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "(" + string(tag) + ")" + ext
}
