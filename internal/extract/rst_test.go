package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorRSTCodeBlockDirective(t *testing.T) {
	src := "Intro\n=====\n\n.. code-block:: python\n\n   print(1)\n   print(2)\n"

	blocks, err := extractorRST(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, "python", b.Language)
	assert.Equal(t, "Intro", b.Context.Title)
	assert.Equal(t, "print(1)\nprint(2)", b.Code)
}

func TestExtractorRSTBareLiteralBlockCue(t *testing.T) {
	src := "Example::\n\n   foo bar baz\n"

	blocks, err := extractorRST(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "foo bar baz", blocks[0].Code)
}

func TestExtractorRSTSectionUnderlineRanksByFirstSeen(t *testing.T) {
	src := "Top\n===\n\nSub\n---\n\n.. code-block:: go\n\n   foo bar baz\n"

	blocks, err := extractorRST(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"Top", "Sub"}, blocks[0].Context.Hierarchy)
}

func TestStripRSTInlineHyperlinkReference(t *testing.T) {
	assert.Equal(t, "see docs", stripRSTInline("see `docs <https://example.com>`_"))
}

func TestCollectIndentedBlockSkipsDirectiveOptions(t *testing.T) {
	src := ".. code-block:: go\n   :linenos:\n\n   func main() { run() }\n"

	blocks, err := extractorRST(src, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "func main() { run() }", blocks[0].Code)
	assert.NotContains(t, blocks[0].Code, "linenos")
}
