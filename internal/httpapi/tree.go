package httpapi

import "astra/internal/domain"

// buildTree derives the hierarchical page tree of a crawl from the
// discovery relationships recorded on each page. Pages whose
// discovering page is unknown (the root, plus any orphaned entries)
// become top-level nodes.
func buildTree(pages []domain.PendingPage) []*domain.PageNode {
	nodes := make(map[string]*domain.PageNode, len(pages))
	for _, page := range pages {
		nodes[page.ID] = &domain.PageNode{
			ID:     page.ID,
			URL:    page.URL,
			Title:  page.Title,
			Depth:  page.Depth,
			Status: page.Status,
		}
	}

	var roots []*domain.PageNode
	for _, page := range pages {
		node := nodes[page.ID]
		if parent, ok := nodes[page.DiscoveredFrom]; ok && page.DiscoveredFrom != page.ID {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}
	return roots
}
