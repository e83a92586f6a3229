package httpapi

import (
	"net/url"
	"strings"
)

const maxChatNameLen = 50

// Separators commonly joining a page title to its site name.
var titleSeparators = []string{" | ", " — ", " – ", " - ", " :: "}

// chatName derives a display name for a chat from its crawl's root
// page title, dropping the trailing site-name segment. Falls back to
// the bare domain when no usable title exists.
func chatName(rootTitle, crawlURL string) string {
	name := strings.TrimSpace(rootTitle)
	for _, sep := range titleSeparators {
		if idx := strings.Index(name, sep); idx > 0 {
			name = strings.TrimSpace(name[:idx])
			break
		}
	}
	if name == "" {
		name = bareDomain(crawlURL)
	}
	if len(name) > maxChatNameLen {
		name = strings.TrimSpace(name[:maxChatNameLen-3]) + "..."
	}
	return name
}

func bareDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
