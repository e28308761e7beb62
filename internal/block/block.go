package block

// Document is the root of a fetched or parsed page.
type Document struct {
	ID     string   // Page ID (empty for parsed fragments without a header)
	Title  string   // Page title
	Blocks []*Block // Top-level blocks, in page order
}

// Block is one node of a page's block tree.
type Block struct {
	ID          string    // Stable upstream ID; empty for blocks not yet created
	Payload     Payload   // Type-specific content
	HasChildren bool      // Upstream reports nested content
	Children    []*Block  // Nested blocks, populated by the fetcher
	Comments    []Comment // Discussion attached to this block
}

// Type returns the upstream type tag for the block.
func (b *Block) Type() string {
	if b == nil || b.Payload == nil {
		return "unsupported"
	}
	return b.Payload.Type()
}

// Span is a run of rich text with a uniform set of annotations.
type Span struct {
	Content     string
	Annotations Annotations
	Link        string   // Hyperlink target, if any
	Mention     *Mention // Typed reference to another workspace object
}

// Annotations are the per-span formatting flags.
type Annotations struct {
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
	Color         string // Empty means the default color
}

// Mention is an explicit reference embedded in rich text.
type Mention struct {
	Type string // page, database, user, date
	ID   string
}

// IsPage reports whether the mention points at a page that can be fetched.
func (m *Mention) IsPage() bool {
	return m != nil && m.Type == "page" && m.ID != ""
}

// User identifies a comment author.
type User struct {
	ID    string
	Name  string
	Email string
}

// Comment is a discussion entry attached to a block.
type Comment struct {
	ID          string
	BlockID     string
	Author      User
	CreatedTime string
	RichText    []Span
}

// PlainText concatenates span contents.
func PlainText(spans []Span) string {
	n := 0
	for _, s := range spans {
		n += len(s.Content)
	}
	buf := make([]byte, 0, n)
	for _, s := range spans {
		buf = append(buf, s.Content...)
	}
	return string(buf)
}

// MergeSpans coalesces adjacent spans that share annotations, link and
// mention, and drops empty spans. The input is not modified.
func MergeSpans(spans []Span) []Span {
	var out []Span
	for _, s := range spans {
		if s.Content == "" {
			continue
		}
		if n := len(out); n > 0 && sameStyle(out[n-1], s) {
			out[n-1].Content += s.Content
			continue
		}
		if s.Mention != nil {
			m := *s.Mention
			s.Mention = &m
		}
		out = append(out, s)
	}
	return out
}

func sameStyle(a, b Span) bool {
	if a.Annotations != b.Annotations || a.Link != b.Link {
		return false
	}
	if a.Mention == nil || b.Mention == nil {
		return a.Mention == nil && b.Mention == nil
	}
	return *a.Mention == *b.Mention
}

// Walk visits blocks in pre-order using an explicit stack. Returning false
// from fn skips the block's children.
func Walk(blocks []*Block, fn func(b *Block, depth int) bool) {
	type frame struct {
		b     *Block
		depth int
	}
	stack := make([]frame, 0, len(blocks))
	for i := len(blocks) - 1; i >= 0; i-- {
		stack = append(stack, frame{blocks[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.b == nil || !fn(f.b, f.depth) {
			continue
		}
		for i := len(f.b.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.b.Children[i], f.depth + 1})
		}
	}
}

// IDs returns the ids of all blocks in pre-order, skipping blocks without one.
func IDs(blocks []*Block) []string {
	var ids []string
	Walk(blocks, func(b *Block, _ int) bool {
		if b.ID != "" {
			ids = append(ids, b.ID)
		}
		return true
	})
	return ids
}
