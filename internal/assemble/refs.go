package assemble

import (
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/google/uuid"
)

// ExtractReferences returns the page ids referenced in rendered text, in
// first-appearance order, normalised and without duplicates. Only typed
// page mentions, child pages and page links count. Plain URLs and
// lookalike text in paragraphs or code are never references.
func ExtractReferences(text string) []string {
	doc, err := markdown.Parse(text)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	block.Walk(doc.Blocks, func(b *block.Block, _ int) bool {
		for _, id := range BlockReferences(b) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		return true
	})
	return out
}

// BlockReferences returns the pages b itself points at, without its
// children: page mentions in its text and comments in span order, then the
// page it is or links to.
func BlockReferences(b *block.Block) []string {
	if b == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = NormalizeID(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	addSpans := func(spans []block.Span) {
		for _, s := range spans {
			if s.Mention.IsPage() {
				add(s.Mention.ID)
			}
		}
	}

	addSpans(block.RichText(b.Payload))
	switch p := b.Payload.(type) {
	case block.ChildPage:
		add(b.ID)
	case block.LinkToPage:
		add(p.PageID)
	}
	for _, c := range b.Comments {
		addSpans(c.RichText)
	}
	return out
}

// NormalizeID maps the dashed and dashless forms of a page id to one key.
// Ids that are not UUIDs are only trimmed and lowercased.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}

// VisitedSet records the documents already expanded in one assembly.
type VisitedSet map[string]struct{}

// NewVisitedSet returns an empty set.
func NewVisitedSet() VisitedSet { return make(VisitedSet) }

// Add marks key as visited and reports whether it was new.
func (v VisitedSet) Add(key string) bool {
	if _, ok := v[key]; ok {
		return false
	}
	v[key] = struct{}{}
	return true
}

// Has reports whether key was visited.
func (v VisitedSet) Has(key string) bool {
	_, ok := v[key]
	return ok
}
