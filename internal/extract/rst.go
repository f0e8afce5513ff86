package extract

import (
	"regexp"
	"strings"

	"codedox/internal/model"
)

var rstDirectiveRe = regexp.MustCompile(`^\.\.\s+(code-block|code|sourcecode)::\s*(\S*)\s*$`)
var rstRefRe = regexp.MustCompile("`([^<`]+?)\\s*<[^>]*>`_+")

// extractRST reduces a reStructuredText document to docEvents: explicit
// ".. code-block::"/".. code::"/".. sourcecode::" directives, and bare
// "::" literal blocks, both recognized by indentation relative to the
// directive or cue line. Section titles (underlined, optionally
// overlined, text) become headings ranked by first-seen underline
// character.
func extractRST(src string) []docEvent {
	lines := strings.Split(src, "\n")
	var events []docEvent
	underlineRank := map[byte]int{}
	nextRank := 1

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if title, char, ok := rstSectionTitle(lines, i); ok {
			rank, known := underlineRank[char]
			if !known {
				rank = nextRank
				underlineRank[char] = rank
				nextRank++
			}
			events = append(events, docEvent{kind: "heading", level: rank, text: title})
			i += 2
			continue
		}

		if m := rstDirectiveRe.FindStringSubmatch(trimmed); m != nil {
			lang := m[2]
			bodyStart, body, next := collectIndentedBlock(lines, i+1, true)
			if len(body) > 0 {
				events = append(events, docEvent{
					kind:      "code",
					language:  lang,
					code:      strings.Join(body, "\n"),
					lineStart: bodyStart + 1,
					lineEnd:   bodyStart + len(body),
				})
			}
			i = next
			continue
		}

		if strings.HasSuffix(trimmed, "::") && trimmed != "::" {
			// Paragraph cue: text ending in "::" introduces a literal
			// block; the "::" itself collapses to a single ":" in the
			// rendered paragraph per RST convention, but since this is
			// description text we just drop the cue.
			cueText := strings.TrimSuffix(trimmed, "::")
			if cueText != "" {
				events = append(events, docEvent{kind: "para", text: stripRSTInline(cueText)})
			}
			bodyStart, body, next := collectIndentedBlock(lines, i+1, false)
			if len(body) > 0 {
				events = append(events, docEvent{
					kind:      "code",
					code:      strings.Join(body, "\n"),
					lineStart: bodyStart + 1,
					lineEnd:   bodyStart + len(body),
				})
			}
			i = next
			continue
		}

		if trimmed == "::" {
			bodyStart, body, next := collectIndentedBlock(lines, i+1, false)
			if len(body) > 0 {
				events = append(events, docEvent{
					kind:      "code",
					code:      strings.Join(body, "\n"),
					lineStart: bodyStart + 1,
					lineEnd:   bodyStart + len(body),
				})
			}
			i = next
			continue
		}

		if trimmed != "" {
			events = append(events, docEvent{kind: "para", text: stripRSTInline(trimmed)})
		}
		i++
	}

	return events
}

func rstSectionTitle(lines []string, i int) (title string, underlineChar byte, ok bool) {
	if i+1 >= len(lines) {
		return "", 0, false
	}
	text := strings.TrimSpace(lines[i])
	underline := strings.TrimSpace(lines[i+1])
	if text == "" || underline == "" || len(underline) < len(text) {
		return "", 0, false
	}
	char := underline[0]
	if !isRSTAdornChar(char) {
		return "", 0, false
	}
	for j := 0; j < len(underline); j++ {
		if underline[j] != char {
			return "", 0, false
		}
	}
	return text, char, true
}

func isRSTAdornChar(c byte) bool {
	return strings.IndexByte("=-~^\"'`#*+.:_", c) >= 0
}

// collectIndentedBlock gathers contiguous lines indented relative to the
// directive/cue line, skipping blank lines at the start. When
// skipOptionLines is true, leading "   :option: value" lines (directive
// options) are consumed and excluded from the code body.
func collectIndentedBlock(lines []string, start int, skipOptionLines bool) (bodyStart int, body []string, next int) {
	i := start
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return i, nil, i
	}

	indent := leadingSpaces(lines[i])
	if indent == 0 {
		return i, nil, i
	}

	if skipOptionLines {
		for i < len(lines) {
			t := strings.TrimSpace(lines[i])
			if strings.HasPrefix(t, ":") && strings.Contains(t, ":") {
				i++
				continue
			}
			if t == "" {
				i++
				continue
			}
			break
		}
	}

	bodyStart = i
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) == "" {
			body = append(body, "")
			i++
			continue
		}
		if leadingSpaces(lines[i]) < indent {
			break
		}
		body = append(body, lines[i][indent:])
		i++
	}
	for len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	return bodyStart, body, i
}

func leadingSpaces(s string) int {
	n := 0
	for n < len(s) && s[n] == ' ' {
		n++
	}
	return n
}

// stripRSTInline removes `text <url>`_ hyperlink-reference syntax,
// leaving just the link text.
func stripRSTInline(s string) string {
	return rstRefRe.ReplaceAllString(s, "$1")
}

func extractorRST(src string, minCodeLines int) ([]model.ExtractedCodeBlock, error) {
	events := extractRST(src)
	return computeContexts(events, minCodeLines), nil
}
