// Package extract turns raw HTML into readable text and outbound links.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DefaultMinFragmentRunes drops navigation crumbs, icon labels and similar noise.
const DefaultMinFragmentRunes = 10

const (
	textSelector    = "p, h1, h2, h3, h4, h5, h6, li, div, span"
	removedSelector = "script, style, noscript"
)

// Cleaner extracts human-readable text from HTML documents.
type Cleaner struct {
	minRunes int
	logger   *zap.Logger
}

// NewCleaner builds a Cleaner. minRunes <= 0 selects DefaultMinFragmentRunes.
func NewCleaner(minRunes int, logger *zap.Logger) *Cleaner {
	if minRunes <= 0 {
		minRunes = DefaultMinFragmentRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{minRunes: minRunes, logger: logger}
}

// Clean returns newline-joined text fragments, or "" if the document cannot be parsed.
func (c *Cleaner) Clean(html string) string {
	text, err := c.clean(html)
	if err != nil {
		c.logger.Warn("clean html failed", zap.Error(err))
		return ""
	}
	return text
}

func (c *Cleaner) clean(html string) (text string, err error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while cleaning html: %v", rec)
		}
	}()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(removedSelector).Remove()

	var fragments []string
	doc.Find(textSelector).Each(func(_ int, s *goquery.Selection) {
		fragment := collapseSpace(s.Text())
		if utf8.RuneCountInString(fragment) < c.minRunes {
			return
		}
		fragments = append(fragments, fragment)
	})
	return strings.Join(fragments, "\n"), nil
}

// CleanText cleans html with default settings.
func CleanText(html string) string {
	return NewCleaner(DefaultMinFragmentRunes, nil).Clean(html)
}

// Links returns the raw href values of every anchor in document order.
func Links(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
