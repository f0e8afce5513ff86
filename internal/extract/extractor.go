package extract

import (
	"strings"

	"codedox/internal/model"
)

// Extractor pulls code blocks with semantic context out of one document
// format.
type Extractor interface {
	Extract(source string) ([]model.ExtractedCodeBlock, error)
}

type extractorFunc func(src string, minCodeLines int) ([]model.ExtractedCodeBlock, error)

type boundExtractor struct {
	fn           extractorFunc
	minCodeLines int
}

func (e boundExtractor) Extract(source string) ([]model.ExtractedCodeBlock, error) {
	return e.fn(source, e.minCodeLines)
}

// ForContentType picks an Extractor by MIME content-type, falling back
// to ForExtension when the content-type is empty or generic
// (text/plain).
func ForContentType(contentType, url string, minCodeLines int) Extractor {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "text/html", "application/xhtml+xml":
		return boundExtractor{fn: extractorHTML, minCodeLines: minCodeLines}
	case "text/markdown", "text/x-markdown":
		return boundExtractor{fn: extractorMarkdown, minCodeLines: minCodeLines}
	}
	return ForExtension(url, minCodeLines)
}

// ForExtension picks an Extractor by file extension in a URL or path.
func ForExtension(path string, minCodeLines int) Extractor {
	lower := strings.ToLower(path)
	switch {
	case hasAnySuffix(lower, ".md", ".mdx", ".markdown"):
		return boundExtractor{fn: extractorMarkdown, minCodeLines: minCodeLines}
	case hasAnySuffix(lower, ".rst", ".rest", ".restx", ".rtxt", ".rstx"):
		return boundExtractor{fn: extractorRST, minCodeLines: minCodeLines}
	case hasAnySuffix(lower, ".txt"):
		return boundExtractor{fn: extractorPlainText, minCodeLines: minCodeLines}
	case hasAnySuffix(lower, ".html", ".htm"):
		return boundExtractor{fn: extractorHTML, minCodeLines: minCodeLines}
	default:
		return boundExtractor{fn: extractorHTML, minCodeLines: minCodeLines}
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
