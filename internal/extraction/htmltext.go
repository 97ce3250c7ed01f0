package extraction

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skipSelectors = []string{"script", "style", "nav", "header", "footer", "aside", "noscript", "iframe"}

// LooksLikeHTML reports whether a free-text submission appears to be HTML
// markup rather than plain text.
func LooksLikeHTML(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, "<") || !strings.Contains(trimmed, ">") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range []string{"<html", "<body", "<div", "<p", "<br", "<span", "<table", "<!doctype"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// HTMLToText reduces HTML markup to readable plain text, dropping
// non-content elements. On parse failure the input is returned unchanged.
func HTMLToText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	for _, sel := range skipSelectors {
		doc.Find(sel).Remove()
	}

	var lines []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, td").Each(func(_ int, s *goquery.Selection) {
		line := strings.Join(strings.Fields(s.Text()), " ")
		if line != "" {
			lines = append(lines, line)
		}
	})

	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(lines, "\n")
}
