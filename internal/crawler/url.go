package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// skipExtensions lists binary and media suffixes that never hold crawlable text.
var skipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".zip", ".rar", ".tar", ".gz", ".7z",
	".exe", ".dmg", ".iso",
	".mp4", ".mp3", ".avi", ".mov", ".wav",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// skipPatterns rejects fragment targets and non-HTTP schemes anywhere in the URL.
var skipPatterns = []string{"#", "mailto:", "tel:", "javascript:", "ftp://"}

// ShouldSkip reports whether a URL matches a skip rule.
func ShouldSkip(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, pattern := range skipPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// ParseStartURL validates a crawl seed. Only absolute http(s) URLs with a host are accepted.
func ParseStartURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	return u, nil
}

// ResolveLink resolves href against base. URLs are kept byte-for-byte after
// resolution: no trailing-slash, query, or fragment normalization.
func ResolveLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	return abs, true
}

// SameAuthority compares network authority (host and port).
func SameAuthority(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Host, b.Host)
}
