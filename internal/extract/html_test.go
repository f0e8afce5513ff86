package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorHTMLPlainPreCode(t *testing.T) {
	html := `<html><body>
<h1>Getting Started</h1>
<p>Run the following:</p>
<pre><code class="language-go">func main() {
	println("hi")
}</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, "go", b.Language)
	assert.Equal(t, "Getting Started", b.Context.Title)
	assert.Equal(t, "Run the following:", b.Context.Description)
	assert.Contains(t, b.Code, "func main()")
}

func TestExtractorHTMLTextareaEditor(t *testing.T) {
	html := `<html><body><textarea>const value = compute();</textarea></body></html>`

	blocks, err := extractorHTML(html, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "const value = compute();", blocks[0].Code)
}

func TestExtractorHTMLStripsLineNumberGutters(t *testing.T) {
	html := `<html><body><pre><code><span class="line-number">1</span>foo()
<span class="line-number">2</span>bar()</code></pre></body></html>`

	blocks, err := extractorHTML(html, 1)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.NotContains(t, blocks[0].Code, "line-number")
}

func TestExtractorHTMLFilenameHintFromFigcaption(t *testing.T) {
	html := `<html><body><figure><figcaption>main.go</figcaption><pre><code>package main</code></pre></figure></body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "main.go", blocks[0].Filename)
}

func TestExtractorHTMLSkipsEmptyCodeBlocks(t *testing.T) {
	html := `<html><body><pre><code></code></pre></body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestExtractorHTMLDropsNavigationParagraphs(t *testing.T) {
	html := `<html><body>
<h1>Guide</h1>
<nav><p><a href="/a">Home</a> | <a href="/b">Docs</a></p></nav>
<p>Run the following:</p>
<pre><code>package main</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Guide", blocks[0].Context.Title)
	assert.Equal(t, "Run the following:", blocks[0].Context.Description)
}

func TestExtractorHTMLPreservesInlineLinkTextOutsideNav(t *testing.T) {
	html := `<html><body>
<p>See the <a href="/ref">reference guide</a> for details.</p>
<pre><code>package main
func main() {}</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "See the reference guide for details.", blocks[0].Context.Description)
}

func TestExtractorHTMLDropsImageOnlyParagraph(t *testing.T) {
	html := `<html><body>
<p><img src="badge.svg" alt="build status"></p>
<h1>Title</h1>
<pre><code>package main
func main() {}</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Empty(t, blocks[0].Context.Description)
}

func TestExtractorHTMLStripsHTMLComments(t *testing.T) {
	html := `<html><body>
<!-- generated by docgen, do not edit -->
<h1>Title</h1>
<pre><code>package main
func main() {}</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Title", blocks[0].Context.Title)
}

func TestExtractorHTMLStripsFootnoteMarkers(t *testing.T) {
	html := `<html><body>
<h1>Title</h1>
<p>This behavior is deprecated<sup><a href="#fn1">1</a></sup>.</p>
<pre><code>package main
func main() {}</code></pre>
</body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "This behavior is deprecated.", blocks[0].Context.Description)
}

func TestLanguageFromClassPrefixes(t *testing.T) {
	html := `<html><body><pre><code class="lang-rb">puts 1</code></pre></body></html>`

	blocks, err := extractorHTML(html, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "rb", blocks[0].Language)
}
