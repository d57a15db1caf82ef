package storage

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"catch-forecast/internal/records"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selectors of the pier's fishing-history page.
const (
	itemSelector    = "div.searched-item"
	chipSelector    = "span.status-chip"
	rowSelector     = "table.fish-list-tabel tbody tr"
	commentSelector = "div.sentence"
	placeRowClass   = "sp-place"
)

var countPattern = regexp.MustCompile(`\d+`)

// ReadHistoryPage extracts ledger rows from a saved fishing-history page.
// Each day block yields one row per species line; the day's status chips
// and comment are copied onto every row.
func ReadHistoryPage(r io.Reader) ([]records.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse history page: %w", err)
	}

	var out []records.RawRecord
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		base := records.RawRecord{
			Date:    firstText(item.Get(0)),
			Comment: strings.TrimSpace(item.Find(commentSelector).First().Text()),
		}
		item.Find(chipSelector).Each(func(_ int, chip *goquery.Selection) {
			applyChip(&base, strings.TrimSpace(chip.Text()))
		})

		item.Find(rowSelector).Each(func(_ int, tr *goquery.Selection) {
			if tr.HasClass(placeRowClass) {
				return
			}
			cells := tr.Find("td")
			if cells.Length() < 4 {
				return
			}
			row := base
			row.Species = strings.TrimSpace(cells.Eq(0).Text())
			row.CatchCount = "0"
			if m := countPattern.FindString(cells.Eq(1).Text()); m != "" {
				row.CatchCount = m
			}
			row.Size = strings.TrimSpace(cells.Eq(2).Text())
			row.Location = strings.TrimSpace(cells.Eq(3).Text())
			out = append(out, row)
		})
	})
	return out, nil
}

// applyChip reads a "label : value / note" status chip.
func applyChip(raw *records.RawRecord, text string) {
	label, value, ok := strings.Cut(text, ":")
	if !ok {
		return
	}
	value, _, _ = strings.Cut(value, "/")
	value = strings.TrimSpace(value)

	switch strings.TrimSpace(label) {
	case "天気":
		raw.Weather = value
	case "水温":
		raw.WaterTemp = value
	case "潮":
		raw.Tide = value
	case "来場者数":
		raw.Visitors = value
	}
}

// firstText returns the first non-blank line of text under n, which on the
// history page is the day's date heading.
func firstText(n *html.Node) string {
	if n.Type == html.TextNode {
		for _, line := range strings.Split(n.Data, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := firstText(c); s != "" {
			return s
		}
	}
	return ""
}
