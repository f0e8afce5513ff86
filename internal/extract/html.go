package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"codedox/internal/model"
)

var htmlHeadingTags = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

// navSelector matches the containers documentation sites use for
// boilerplate link lists (sidebars, breadcrumbs, tables of contents)
// rather than prose; paragraphs inside one are dropped entirely, but
// an inline link inside a genuine content paragraph still renders as
// its visible text via sel.Text().
const navSelector = "nav, [role=navigation], .navbar, .nav, .breadcrumb, .breadcrumbs, .toc, .sidebar"

// footnoteSelector matches the markers documentation generators use
// for footnote references, which read as noise once a page's content
// is flattened to plain text disconnected from the footnote itself.
const footnoteSelector = "sup, a[href^='#fn'], a.footnote-ref, a.footnote-backref"

var htmlCommentRE = regexp.MustCompile(`(?s)<!--.*?-->`)

// extractHTML reduces an HTML document to docEvents in document order,
// recognizing plain <pre><code>, bare <pre>, common syntax-highlighter
// wrappers (div.highlight, div[class*=code-block]), and <textarea>-based
// editors as code blocks.
func extractHTML(doc *goquery.Document) []docEvent {
	var events []docEvent
	seen := make(map[*goquery.Selection]bool)

	root := doc.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body
	}

	root.Find("h1,h2,h3,h4,h5,h6,p,pre,textarea").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)

		if level, ok := htmlHeadingTags[tag]; ok {
			if sel.ParentsFiltered(navSelector).Length() > 0 {
				return
			}
			if text := proseText(sel); text != "" {
				events = append(events, docEvent{kind: "heading", level: level, text: text})
			}
			return
		}

		if tag == "p" {
			// Skip paragraphs that are themselves inside a code container
			// (some highlighters wrap lines in <p>); those are handled by
			// the pre/textarea branch.
			if sel.ParentsFiltered("pre,textarea").Length() > 0 {
				return
			}
			// Skip navigation boilerplate and image-only/badge-only lines.
			if sel.ParentsFiltered(navSelector).Length() > 0 {
				return
			}
			if text := proseText(sel); text != "" {
				events = append(events, docEvent{kind: "para", text: text})
			}
			return
		}

		if seen[sel] {
			return
		}
		seen[sel] = true

		code, lang, filename := extractCodeElement(sel)
		if strings.TrimSpace(code) == "" {
			return
		}
		lineCount := strings.Count(code, "\n") + 1
		events = append(events, docEvent{
			kind:      "code",
			language:  lang,
			code:      code,
			filename:  filename,
			lineStart: 1,
			lineEnd:   lineCount,
		})
	})

	return events
}

// proseText renders a heading/paragraph's text with footnote markers
// stripped and returns "" when what remains is only an image or badge
// (an <img>/<svg> with no other meaningful text).
func proseText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find(footnoteSelector).Remove()

	withoutImages := clone.Clone()
	withoutImages.Find("img,svg").Remove()
	if cleanText(withoutImages.Text()) == "" && clone.Find("img,svg").Length() > 0 {
		return ""
	}

	return cleanText(clone.Text())
}

// extractCodeElement pulls literal code text, a language hint, and an
// optional filename hint out of a <pre> or <textarea> element.
func extractCodeElement(sel *goquery.Selection) (code, lang, filename string) {
	tag := goquery.NodeName(sel)

	if tag == "textarea" {
		return sel.Text(), "", ""
	}

	codeEl := sel.Find("code").First()
	target := sel
	if codeEl.Length() > 0 {
		target = codeEl
	}

	lang = languageFromClass(target)
	if lang == "" {
		lang = languageFromClass(sel)
	}
	if lang == "" {
		if dataLang, ok := target.Attr("data-lang"); ok {
			lang = dataLang
		}
	}

	filename = filenameHint(sel)

	// Strip inline line-number gutters some highlighters inject as
	// sibling <span class="line-number"> elements.
	clone := target.Clone()
	clone.Find("span.line-number,span.lineno,span.ln").Remove()

	return clone.Text(), lang, filename
}

func languageFromClass(sel *goquery.Selection) string {
	class, ok := sel.Attr("class")
	if !ok {
		return ""
	}
	for _, c := range strings.Fields(class) {
		if strings.HasPrefix(c, "language-") {
			return strings.TrimPrefix(c, "language-")
		}
		if strings.HasPrefix(c, "lang-") {
			return strings.TrimPrefix(c, "lang-")
		}
	}
	return ""
}

func filenameHint(sel *goquery.Selection) string {
	// A preceding sibling "file tab" element, or a figcaption, commonly
	// carries the filename in documentation generators.
	if fig := sel.Closest("figure").Find("figcaption").First(); fig.Length() > 0 {
		text := cleanText(fig.Text())
		if text != "" && !strings.Contains(text, " ") {
			return text
		}
	}
	if prev := sel.Prev(); prev.Length() > 0 {
		class, _ := prev.Attr("class")
		if strings.Contains(class, "filename") || strings.Contains(class, "file-name") || strings.Contains(class, "tab") {
			return cleanText(prev.Text())
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractorHTML(html string, minCodeLines int) ([]model.ExtractedCodeBlock, error) {
	html = htmlCommentRE.ReplaceAllString(html, "")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	events := extractHTML(doc)
	return computeContexts(events, minCodeLines), nil
}
