package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorMarkdownAssignsNearestHeadingAsTitle(t *testing.T) {
	src := "# Intro\n\nSome prose before the block.\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, "go", b.Language)
	assert.Equal(t, "Intro", b.Context.Title)
	assert.Equal(t, "Some prose before the block.", b.Context.Description)
	assert.Equal(t, []string{"Intro"}, b.Context.Hierarchy)
	assert.Contains(t, b.Code, "func main()")
}

func TestExtractorMarkdownBuildsHeadingHierarchy(t *testing.T) {
	src := "# A\n## B\n### C\n```js\nconsole.log(1)\nconsole.log(2)\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"A", "B", "C"}, blocks[0].Context.Hierarchy)
	assert.Equal(t, "C", blocks[0].Context.Title)
}

func TestExtractorMarkdownSiblingHeadingResetsHierarchy(t *testing.T) {
	src := "# A\n## B\n```js\n1\n2\n3\n```\n## C\n```js\n4\n5\n6\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, []string{"A", "B"}, blocks[0].Context.Hierarchy)
	assert.Equal(t, []string{"A", "C"}, blocks[1].Context.Hierarchy)
}

func TestExtractorMarkdownSingleLineBlockRequiresThreeTokens(t *testing.T) {
	src := "```go\nx\n```\n\n```go\nfoo bar baz\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1, "the bare single-token block should be filtered out")
	assert.Equal(t, "foo bar baz", blocks[0].Code)
}

func TestExtractorMarkdownTildeFence(t *testing.T) {
	src := "~~~python\nprint(1)\nprint(2)\n~~~\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "python", blocks[0].Language)
}

func TestExtractorMarkdownSetextHeading(t *testing.T) {
	src := "Title\n=====\n\n```go\nfoo bar baz\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Title", blocks[0].Context.Title)
}

func TestExtractorMarkdownIndentedCodeBlock(t *testing.T) {
	src := "# Heading\n\n    line one\n    line two\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "line one\nline two", blocks[0].Code)
}

func TestStripMarkdownInlineLinksAndImages(t *testing.T) {
	assert.Equal(t, "see docs", stripMarkdownInline("see [docs](https://example.com/docs)"))
	assert.Equal(t, "a b", stripMarkdownInline("a ![logo](logo.png) b"))
	assert.Equal(t, "", stripMarkdownInline("![build status](badge.svg)"))
}

func TestExtractorMarkdownUnclosedFenceClosesAtNextHeading(t *testing.T) {
	src := "```go\nfunc main() {\n\tprintln(\"hi\")\n\n# Next Section\n\nSome prose.\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "func main() {\n\tprintln(\"hi\")\n", blocks[0].Code)

	events := extractMarkdown(src, false)
	var headings []string
	for _, ev := range events {
		if ev.kind == "heading" {
			headings = append(headings, ev.text)
		}
	}
	assert.Equal(t, []string{"Next Section"}, headings)
}

func TestExtractorMarkdownImageOnlyParagraphHasNoDescription(t *testing.T) {
	src := "# Heading\n\n![build status](badge.svg)\n\n```go\nfoo bar baz\n```\n"

	blocks, err := extractorMarkdown(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Context.Description)
}

func TestExtractorPlainTextIgnoresHeadings(t *testing.T) {
	src := "# not a heading here\n\n```\nfoo bar baz\n```\n"

	blocks, err := extractorPlainText(src, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Context.Title)
}
