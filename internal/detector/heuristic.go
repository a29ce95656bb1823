// Package detector decides when a fetched document needs a browser render.
package detector

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Thresholds for the emptiness heuristic, in runes of visible text
// after scripts and styles are stripped. The script-heavy rule exists
// for shells that pad the document with framework markup but still
// ship nearly all content behind script tags.
const (
	minDocumentRunes = 100
	minBodyRunes     = 50
	scriptHeavyCount = 5
	scriptHeavyRunes = 200
)

// Heuristic implements snapshot.RenderDetector using simple HTML signals.
type Heuristic struct{}

// NewHeuristic creates a new detector.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// NeedsRender reports whether html looks like an unrendered script
// shell. Unparseable input claims a render rather than letting junk
// through to the archive.
func (h *Heuristic) NeedsRender(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}

	scriptCount := doc.Find("script").Length()
	doc.Find("script, style, noscript").Remove()

	totalRunes := utf8.RuneCountInString(collapsedText(doc.Selection))
	if totalRunes < minDocumentRunes {
		return true
	}
	bodyRunes := utf8.RuneCountInString(collapsedText(doc.Find("body")))
	if bodyRunes < minBodyRunes {
		return true
	}
	return scriptCount > scriptHeavyCount && totalRunes < scriptHeavyRunes
}

// collapsedText squeezes whitespace runs so markup indentation does not
// count as content.
func collapsedText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
