// Package extract is the Extractor Set: HTML, Markdown, and RST readers
// that all reduce to the same model.ExtractedCodeBlock shape via a shared
// semantic-context algorithm (spec.md §4.3).
package extract

import (
	"strings"
	"unicode"

	"codedox/internal/model"
)

// docEvent is one element of a document's linear reading order, as seen
// by the shared context-assignment algorithm. Every format-specific
// reader (HTML, Markdown, RST) reduces its document to a []docEvent and
// hands it to computeContexts; the context algorithm itself never looks
// at markup again.
type docEvent struct {
	kind string // "heading", "para", "code"

	// heading
	level int
	text  string

	// code
	language   string
	code       string
	filename   string
	lineStart  int
	lineEnd    int
	sourceByte int
}

type headingFrame struct {
	level int
	text  string
}

// computeContexts walks events in document order and assigns each code
// block the nearest preceding heading as its title, the ancestor heading
// chain as its hierarchy, and the paragraph text seen since that heading
// as its description. A code block never picks up text that appears
// after it in the document.
func computeContexts(events []docEvent, minCodeLines int) []model.ExtractedCodeBlock {
	var stack []headingFrame
	var pendingParas []string
	var out []model.ExtractedCodeBlock

	for _, ev := range events {
		switch ev.kind {
		case "heading":
			for len(stack) > 0 && stack[len(stack)-1].level >= ev.level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingFrame{level: ev.level, text: ev.text})
			pendingParas = nil

		case "para":
			text := strings.TrimSpace(ev.text)
			if text != "" {
				pendingParas = append(pendingParas, text)
			}

		case "code":
			if !includeBlock(ev, minCodeLines) {
				continue
			}

			title := ""
			hierarchy := make([]string, 0, len(stack))
			for _, h := range stack {
				hierarchy = append(hierarchy, h.text)
			}
			if len(stack) > 0 {
				title = stack[len(stack)-1].text
			}

			out = append(out, model.ExtractedCodeBlock{
				Language: ev.language,
				Code:     ev.code,
				Filename: ev.filename,
				Context: model.ExtractedContext{
					Title:       title,
					Description: strings.Join(pendingParas, "\n\n"),
					Hierarchy:   hierarchy,
				},
				LineStart:    ev.lineStart,
				LineEnd:      ev.lineEnd,
				SourceOffset: ev.sourceByte,
			})
		}
	}

	return out
}

// includeBlock applies the multi-line-vs-single-line inclusion rule: a
// block spanning more than one line is always a candidate; a single-line
// block is only a candidate when it has at least 3 significant tokens
// (filters out bare identifiers, single-letter variable lists, and
// punctuation-only fragments misdetected as code).
func includeBlock(ev docEvent, minCodeLines int) bool {
	code := strings.TrimSpace(ev.code)
	if code == "" {
		return false
	}
	lines := strings.Split(code, "\n")
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}
	if nonEmpty > 1 {
		return nonEmpty >= minCodeLines || minCodeLines <= 1
	}
	return significantTokenCount(code) >= 3
}

// significantTokenCount counts whitespace-separated tokens that carry
// actual meaning: multi-character tokens containing at least one letter
// or digit. A lone punctuation mark ("-", ">", ";") or a single-letter
// token ("a", "x") doesn't count, since quote markers and variable-name
// lists shouldn't be mistaken for real code.
func significantTokenCount(code string) int {
	n := 0
	for _, tok := range strings.Fields(code) {
		trimmed := strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(trimmed)) >= 2 {
			n++
		}
	}
	return n
}
