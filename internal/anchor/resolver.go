package anchor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dpavlenko/marksync/internal/common"
)

// Document is the resolver's view of a page: an ordered sequence of text
// blocks, already extracted from whatever structure the host renders.
type Document struct {
	Blocks []string
}

// Selection addresses a contiguous run of runes inside one block.
// Start is inclusive, End exclusive, both rune offsets.
type Selection struct {
	Doc   Document
	Block int
	Start int
	End   int
}

// Config tunes selector construction.
type Config struct {
	PrefixLen int
	SuffixLen int
	ExactMax  int
}

// DefaultConfig returns the limits persisted selectors are validated against.
func DefaultConfig() Config {
	return Config{PrefixLen: ContextMax, SuffixLen: ContextMax, ExactMax: ExactMax}
}

// Build constructs a Selector from a captured selection.
//
// Exact is the selection's full text; an empty selection or one longer than
// cfg.ExactMax fails with a validation error. Prefix is gathered by walking
// backward from the selection start through the current block and then
// preceding blocks until cfg.PrefixLen runes are collected or the document
// start is reached, keeping the last cfg.PrefixLen runes. Suffix mirrors
// that walking forward. Either is omitted entirely when no adjacent text
// exists.
func Build(sel Selection, cfg Config) (Selector, error) {
	// Zero-valued fields fall back independently so a partial Config keeps
	// sane limits for the rest.
	if cfg.PrefixLen <= 0 {
		cfg.PrefixLen = ContextMax
	}
	if cfg.SuffixLen <= 0 {
		cfg.SuffixLen = ContextMax
	}
	if cfg.ExactMax <= 0 {
		cfg.ExactMax = ExactMax
	}

	if sel.Block < 0 || sel.Block >= len(sel.Doc.Blocks) {
		return Selector{}, fmt.Errorf("%w: block %d out of range", common.ErrValidation, sel.Block)
	}

	block := []rune(sel.Doc.Blocks[sel.Block])
	if sel.Start < 0 || sel.End > len(block) || sel.Start > sel.End {
		return Selector{}, fmt.Errorf("%w: selection offsets [%d,%d) invalid", common.ErrValidation, sel.Start, sel.End)
	}

	exact := string(block[sel.Start:sel.End])
	if exact == "" {
		return Selector{}, fmt.Errorf("%w: empty selection", common.ErrValidation)
	}
	if n := utf8.RuneCountInString(exact); n > cfg.ExactMax {
		return Selector{}, fmt.Errorf("%w: selection is %d runes, max %d", common.ErrValidation, n, cfg.ExactMax)
	}

	out := Selector{
		Type:   SelectorType,
		Exact:  exact,
		Prefix: walkBackward(sel, cfg.PrefixLen),
		Suffix: walkForward(sel, cfg.SuffixLen),
	}
	return out, nil
}

// walkBackward gathers up to limit runes of text preceding the selection,
// starting inside the selection's block and continuing through earlier
// blocks until enough context is collected or the document start is reached.
func walkBackward(sel Selection, limit int) string {
	if limit <= 0 {
		return ""
	}

	var sb strings.Builder
	block := []rune(sel.Doc.Blocks[sel.Block])
	sb.WriteString(string(block[:sel.Start]))

	for i := sel.Block - 1; i >= 0 && utf8.RuneCountInString(sb.String()) < limit; i-- {
		prev := sb.String()
		sb.Reset()
		sb.WriteString(sel.Doc.Blocks[i])
		sb.WriteString(prev)
	}

	return lastRunes(sb.String(), limit)
}

// walkForward mirrors walkBackward toward the document end.
func walkForward(sel Selection, limit int) string {
	if limit <= 0 {
		return ""
	}

	var sb strings.Builder
	block := []rune(sel.Doc.Blocks[sel.Block])
	sb.WriteString(string(block[sel.End:]))

	for i := sel.Block + 1; i < len(sel.Doc.Blocks) && utf8.RuneCountInString(sb.String()) < limit; i++ {
		sb.WriteString(sel.Doc.Blocks[i])
	}

	return firstRunes(sb.String(), limit)
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
