package anchor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dpavlenko/marksync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selection(blocks []string, block, start, end int) Selection {
	return Selection{Doc: Document{Blocks: blocks}, Block: block, Start: start, End: end}
}

func TestBuild_Simple(t *testing.T) {
	sel := selection([]string{"the quick brown fox jumps over the lazy dog"}, 0, 10, 19)

	s, err := Build(sel, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, SelectorType, s.Type)
	assert.Equal(t, "brown fox", s.Exact)
	assert.Equal(t, "the quick ", s.Prefix)
	assert.Equal(t, " jumps over the lazy dog", s.Suffix)
	require.NoError(t, s.Validate())
}

func TestBuild_EmptySelection(t *testing.T) {
	sel := selection([]string{"some text"}, 0, 3, 3)

	_, err := Build(sel, DefaultConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestBuild_ExactTooLong(t *testing.T) {
	long := strings.Repeat("x", ExactMax+1)
	sel := selection([]string{long}, 0, 0, len([]rune(long)))

	_, err := Build(sel, DefaultConfig())
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestBuild_PartialConfigDefaultsRemainingFields(t *testing.T) {
	sel := selection([]string{"the quick brown fox jumps over the lazy dog"}, 0, 10, 19)

	// Only PrefixLen is set; the other limits must still default instead of
	// collapsing to zero and rejecting the selection.
	s, err := Build(sel, Config{PrefixLen: 4})
	require.NoError(t, err)

	assert.Equal(t, "brown fox", s.Exact)
	assert.Equal(t, "ick ", s.Prefix)
	assert.Equal(t, " jumps over the lazy dog", s.Suffix)
}

func TestBuild_InvalidOffsets(t *testing.T) {
	for _, tt := range []struct {
		name  string
		block int
		start int
		end   int
	}{
		{"block out of range", 1, 0, 1},
		{"negative start", 0, -1, 2},
		{"end past block", 0, 0, 100},
		{"start after end", 0, 3, 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(selection([]string{"short"}, tt.block, tt.start, tt.end), DefaultConfig())
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
}

func TestBuild_NoAdjacentTextOmitsContext(t *testing.T) {
	// Whole-block selection, single block: no prefix, no suffix.
	sel := selection([]string{"standalone"}, 0, 0, 10)

	s, err := Build(sel, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, s.Prefix)
	assert.Empty(t, s.Suffix)

	// Absent fields must not appear on the wire at all.
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "prefix")
	assert.NotContains(t, string(b), "suffix")
}

func TestBuild_ContextTruncatedToLimit(t *testing.T) {
	before := strings.Repeat("a", 100)
	after := strings.Repeat("b", 100)
	sel := selection([]string{before + "EXACT" + after}, 0, 100, 105)

	s, err := Build(sel, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("a", ContextMax), s.Prefix)
	assert.Equal(t, strings.Repeat("b", ContextMax), s.Suffix)
}

func TestBuild_WalksAcrossBlocks(t *testing.T) {
	blocks := []string{"first block ", "second ", "THE TEXT", " third", " fourth block"}
	sel := selection(blocks, 2, 0, 8)

	s, err := Build(sel, DefaultConfig())
	require.NoError(t, err)

	// 32 runes gathered from the preceding blocks, keeping the tail.
	assert.Equal(t, "block second ", s.Prefix[len(s.Prefix)-13:])
	assert.LessOrEqual(t, len([]rune(s.Prefix)), ContextMax)
	assert.Equal(t, " third fourth block", s.Suffix)
}

func TestBuild_RuneAwareTruncation(t *testing.T) {
	before := strings.Repeat("в", 40) // multibyte
	sel := selection([]string{before + "exact"}, 0, 40, 45)

	s, err := Build(sel, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("в", ContextMax), s.Prefix)
}

func TestBuild_ZeroConfigUsesDefaults(t *testing.T) {
	sel := selection([]string{"abc def ghi"}, 0, 4, 7)

	s, err := Build(sel, Config{})
	require.NoError(t, err)
	assert.Equal(t, "def", s.Exact)
	assert.Equal(t, "abc ", s.Prefix)
	assert.Equal(t, " ghi", s.Suffix)
}

func TestSelector_Validate(t *testing.T) {
	valid := Selector{Type: SelectorType, Exact: "x"}
	require.NoError(t, valid.Validate())

	for _, tt := range []struct {
		name string
		s    Selector
	}{
		{"wrong type", Selector{Type: "RangeSelector", Exact: "x"}},
		{"empty exact", Selector{Type: SelectorType}},
		{"exact too long", Selector{Type: SelectorType, Exact: strings.Repeat("x", ExactMax+1)}},
		{"prefix too long", Selector{Type: SelectorType, Exact: "x", Prefix: strings.Repeat("p", ContextMax+1)}},
		{"suffix too long", Selector{Type: SelectorType, Exact: "x", Suffix: strings.Repeat("s", ContextMax+1)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.s.Validate(), common.ErrValidation))
		})
	}
}
