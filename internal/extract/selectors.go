package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractSelectors applies each named CSS selector to the document and
// returns the trimmed text of the first match. Selectors with no match map
// to nil so the caller can tell "absent" from "empty".
func ExtractSelectors(html string, selectors map[string]string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	out := make(map[string]any, len(selectors))
	for field, selector := range selectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			out[field] = nil
			continue
		}
		out[field] = strings.TrimSpace(sel.Text())
	}
	return out, nil
}
