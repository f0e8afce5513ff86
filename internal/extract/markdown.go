package extract

import (
	"strings"

	"codedox/internal/model"
)

// extractMarkdown reduces a Markdown (or plain-text, fence-scan-only)
// document to docEvents by walking lines directly rather than through
// goldmark's AST, since the context algorithm needs raw line numbers and
// surrounding prose verbatim, not a rendered tree.
func extractMarkdown(src string, fenceOnly bool) []docEvent {
	lines := strings.Split(src, "\n")
	var events []docEvent

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if !fenceOnly {
			if level, text, ok := atxHeading(trimmed); ok {
				events = append(events, docEvent{kind: "heading", level: level, text: text})
				i++
				continue
			}
			if text, level, ok := setextHeading(lines, i); ok {
				events = append(events, docEvent{kind: "heading", level: level, text: text})
				i += 2
				continue
			}
		}

		if fence, lang, ok := fenceOpen(trimmed); ok {
			start := i
			var body []string
			j := i + 1
			closed := false
			for j < len(lines) {
				if isFenceClose(lines[j], fence) {
					closed = true
					break
				}
				// An unclosed fence is closed at the next heading rather than
				// swallowing the rest of the document.
				if !fenceOnly {
					t := strings.TrimSpace(lines[j])
					if _, _, ok := atxHeading(t); ok {
						break
					}
					if _, _, ok := setextHeading(lines, j); ok {
						break
					}
				}
				body = append(body, lines[j])
				j++
			}
			events = append(events, docEvent{
				kind:      "code",
				language:  lang,
				code:      strings.Join(body, "\n"),
				lineStart: start + 1,
				lineEnd:   j + 1,
			})
			if closed {
				i = j + 1
			} else {
				i = j
			}
			continue
		}

		if !fenceOnly && isIndentedCodeStart(line) {
			start := i
			var body []string
			for i < len(lines) && (isIndentedCodeStart(lines[i]) || strings.TrimSpace(lines[i]) == "") {
				if strings.TrimSpace(lines[i]) == "" {
					body = append(body, "")
				} else {
					body = append(body, strings.TrimPrefix(lines[i], "    "))
				}
				i++
			}
			for len(body) > 0 && body[len(body)-1] == "" {
				body = body[:len(body)-1]
			}
			events = append(events, docEvent{
				kind:      "code",
				code:      strings.Join(body, "\n"),
				lineStart: start + 1,
				lineEnd:   start + len(body),
			})
			continue
		}

		if trimmed != "" {
			events = append(events, docEvent{kind: "para", text: stripMarkdownInline(trimmed)})
		}
		i++
	}

	return events
}

func atxHeading(trimmed string) (level int, text string, ok bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return 0, "", false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n == len(trimmed) {
		return 0, "", false
	}
	rest := strings.TrimSpace(trimmed[n:])
	rest = strings.TrimRight(rest, "#")
	return n, strings.TrimSpace(rest), true
}

func setextHeading(lines []string, i int) (text string, level int, ok bool) {
	if i+1 >= len(lines) {
		return "", 0, false
	}
	text = strings.TrimSpace(lines[i])
	underline := strings.TrimSpace(lines[i+1])
	if text == "" || underline == "" {
		return "", 0, false
	}
	if strings.Count(underline, "=") == len(underline) {
		return text, 1, true
	}
	if strings.Count(underline, "-") == len(underline) && len(underline) > 0 {
		return text, 2, true
	}
	return "", 0, false
}

func fenceOpen(trimmed string) (fence string, lang string, ok bool) {
	for _, marker := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, marker) {
			info := strings.TrimSpace(strings.TrimPrefix(trimmed, marker))
			if fields := strings.Fields(info); len(fields) > 0 {
				lang = fields[0]
			}
			return marker, lang, true
		}
	}
	return "", "", false
}

func isFenceClose(line string, fence string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fence)
}

func isIndentedCodeStart(line string) bool {
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}

// stripMarkdownInline removes link/image syntax so paragraph text used
// as description doesn't carry raw markup: "[text](url)" -> "text",
// "![alt](url)" is removed entirely (an image contributes nothing
// readable to a text description).
func stripMarkdownInline(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '!' && i+1 < len(s) && s[i+1] == '[' {
			close := strings.IndexByte(s[i+1:], ']')
			if close >= 0 {
				closeIdx := i + 1 + close
				rest := s[closeIdx+1:]
				if strings.HasPrefix(rest, "(") {
					if paren := strings.IndexByte(rest, ')'); paren >= 0 {
						i = closeIdx + 1 + paren + 1
						continue
					}
				}
			}
			// Malformed image syntax (no closing "]" or "(url)"); drop
			// just the "!" and let the rest fall through to the "["
			// handling below.
			i++
			continue
		}
		if s[i] == '[' {
			close := strings.IndexByte(s[i:], ']')
			if close >= 0 {
				label := s[i+1 : i+close]
				rest := s[i+close+1:]
				if strings.HasPrefix(rest, "(") {
					paren := strings.IndexByte(rest, ')')
					if paren >= 0 {
						b.WriteString(label)
						i += close + 1 + paren + 1
						continue
					}
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func extractorMarkdown(src string, minCodeLines int) ([]model.ExtractedCodeBlock, error) {
	events := extractMarkdown(src, false)
	return computeContexts(events, minCodeLines), nil
}

func extractorPlainText(src string, minCodeLines int) ([]model.ExtractedCodeBlock, error) {
	events := extractMarkdown(src, true)
	return computeContexts(events, minCodeLines), nil
}
