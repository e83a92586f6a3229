package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)`)

var blockedSchemes = []string{"mailto:", "javascript:", "tel:", "data:"}

// ExtractLinks pulls same-domain link targets out of page markdown.
// Relative paths resolve against the base URL, non-navigational
// schemes are dropped, results are normalized and deduplicated in
// discovery order, and the base URL itself is excluded.
func ExtractLinks(markdown, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	for _, match := range markdownLink.FindAllStringSubmatch(markdown, -1) {
		target := strings.TrimSpace(match[1])
		if target == "" || strings.HasPrefix(target, "#") || blocked(target) {
			continue
		}
		ref, err := url.Parse(target)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if !sameHost(resolved.Host, base.Host) {
			continue
		}
		resolved.Fragment = ""
		normalized, err := purell.NormalizeURLString(resolved.String(), purell.FlagsUsuallySafeGreedy)
		if err != nil {
			continue
		}
		if normalizedEqual(normalized, baseURL) {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	}
	return links
}

func blocked(target string) bool {
	lower := strings.ToLower(target)
	for _, scheme := range blockedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func sameHost(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}

func normalizedEqual(link, baseURL string) bool {
	normalizedBase, err := purell.NormalizeURLString(baseURL, purell.FlagsUsuallySafeGreedy)
	if err != nil {
		return link == baseURL
	}
	return link == normalizedBase
}
