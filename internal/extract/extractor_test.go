package extract

import (
	"reflect"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fnName(fn extractorFunc) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	return full
}

func TestForContentTypePicksByMimeType(t *testing.T) {
	html := ForContentType("text/html; charset=utf-8", "", 1).(boundExtractor)
	assert.Contains(t, fnName(html.fn), "extractorHTML")

	md := ForContentType("text/markdown", "", 1).(boundExtractor)
	assert.Contains(t, fnName(md.fn), "extractorMarkdown")
}

func TestForContentTypeFallsBackToExtension(t *testing.T) {
	e := ForContentType("", "https://example.com/guide.rst", 1).(boundExtractor)
	assert.Contains(t, fnName(e.fn), "extractorRST")
}

func TestForExtensionPicksByFileSuffix(t *testing.T) {
	cases := map[string]string{
		"guide.md":      "extractorMarkdown",
		"guide.mdx":     "extractorMarkdown",
		"guide.rst":     "extractorRST",
		"notes.txt":     "extractorPlainText",
		"page.html":     "extractorHTML",
		"unknownformat": "extractorHTML",
	}
	for path, want := range cases {
		got := ForExtension(path, 1).(boundExtractor)
		assert.Contains(t, fnName(got.fn), want, "path=%s", path)
	}
}

func TestHasAnySuffix(t *testing.T) {
	assert.True(t, hasAnySuffix("a.md", ".md", ".mdx"))
	assert.False(t, hasAnySuffix("a.go", ".md", ".mdx"))
}
