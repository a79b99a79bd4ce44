// Package document extracts plain text from uploaded files so they can be
// chunked and embedded alongside crawled pages.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/siteingest/internal/extract"
)

// Document extraction failures. All of them are caller errors.
var (
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrEmpty           = errors.New("empty file received")
	ErrNoText          = errors.New("no text content could be extracted from the file")
)

// Kind identifies how a file's text is recovered.
type Kind string

// Supported kinds, keyed by file extension.
const (
	KindText Kind = "text"
	KindHTML Kind = "html"
	KindSVG  Kind = "svg"
)

var kinds = map[string]Kind{
	"txt":  KindText,
	"md":   KindText,
	"csv":  KindText,
	"html": KindHTML,
	"htm":  KindHTML,
	"svg":  KindSVG,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Allowed lists the accepted extensions in sorted order.
func Allowed() []string {
	exts := make([]string, 0, len(kinds))
	for ext := range kinds {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// KindOf maps a file name to its Kind by extension.
func KindOf(filename string) (Kind, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	kind, ok := kinds[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q, allowed types: %s", ErrUnsupportedType, ext, strings.Join(Allowed(), ", "))
	}
	return kind, nil
}

// Extractor turns file contents into text.
type Extractor struct {
	cleaner *extract.Cleaner
}

// NewExtractor builds an Extractor. cleaner handles HTML uploads; nil selects
// the default cleaner.
func NewExtractor(cleaner *extract.Cleaner) *Extractor {
	if cleaner == nil {
		cleaner = extract.NewCleaner(extract.DefaultMinFragmentRunes, nil)
	}
	return &Extractor{cleaner: cleaner}
}

// Extract returns the text of content, dispatching on filename's extension.
func (e *Extractor) Extract(filename string, content []byte) (string, error) {
	kind, err := KindOf(filename)
	if err != nil {
		return "", err
	}
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return "", ErrEmpty
	}
	raw := strings.ToValidUTF8(string(content), string(utf8.RuneError))

	var text string
	switch kind {
	case KindHTML:
		text = e.cleaner.Clean(raw)
	case KindSVG:
		text, err = extract.SVGText(raw)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", filename, err)
		}
	default:
		text = raw
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
