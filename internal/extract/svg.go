package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const svgTextSelector = "title, desc, text"

// SVGText returns the human-readable text of an SVG image: its title and
// description plus every text element, one per line.
func SVGText(svg string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(svg))
	if err != nil {
		return "", fmt.Errorf("parse svg: %w", err)
	}
	var lines []string
	doc.Find("svg").Find(svgTextSelector).Each(func(_ int, s *goquery.Selection) {
		if line := collapseSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n"), nil
}
