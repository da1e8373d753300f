// Package anchor builds portable text-location descriptors from captured
// selections. A selector is pure data: it holds no references into the
// document it came from and can be serialized and re-resolved later.
package anchor

import (
	"fmt"
	"unicode/utf8"

	"github.com/dpavlenko/marksync/internal/common"
)

// SelectorType is the only selector kind the engine produces.
const SelectorType = "TextQuoteSelector"

// Limits enforced on persisted selectors.
const (
	ExactMax   = 5000
	ContextMax = 32
)

// Selector locates a passage by its exact text plus up to ContextMax runes
// of surrounding context. Prefix and suffix are omitted, not empty, when no
// adjacent text exists; callers must treat absent and empty as distinct.
type Selector struct {
	Type   string `json:"type"`
	Exact  string `json:"exact"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// Validate checks the invariants required of a persisted selector.
func (s Selector) Validate() error {
	if s.Type != SelectorType {
		return fmt.Errorf("%w: selector type %q", common.ErrValidation, s.Type)
	}
	n := utf8.RuneCountInString(s.Exact)
	if n == 0 {
		return fmt.Errorf("%w: selector exact is empty", common.ErrValidation)
	}
	if n > ExactMax {
		return fmt.Errorf("%w: selector exact is %d runes, max %d", common.ErrValidation, n, ExactMax)
	}
	if utf8.RuneCountInString(s.Prefix) > ContextMax {
		return fmt.Errorf("%w: selector prefix exceeds %d runes", common.ErrValidation, ContextMax)
	}
	if utf8.RuneCountInString(s.Suffix) > ContextMax {
		return fmt.Errorf("%w: selector suffix exceeds %d runes", common.ErrValidation, ContextMax)
	}
	return nil
}
