package block

import "fmt"

// Payload is the closed set of block variants. Each upstream block type maps
// to exactly one implementation; anything else becomes Unsupported.
type Payload interface {
	Type() string
	payload()
}

type Paragraph struct{ RichText []Span }

type Heading struct {
	Level    int // 1..3
	RichText []Span
}

type BulletedListItem struct{ RichText []Span }

type NumberedListItem struct{ RichText []Span }

type ToDo struct {
	Checked  bool
	RichText []Span
}

type Code struct {
	Language string
	RichText []Span
}

type Quote struct{ RichText []Span }

type Divider struct{}

// ChildPage is a sub-page. Its page id is the owning block's id.
type ChildPage struct{ Title string }

type LinkToPage struct{ PageID string }

// File covers the upstream file, pdf and image blocks.
type File struct {
	Kind string // file, pdf, image
	Name string
	URL  string
}

// Unsupported keeps whatever plain text an unknown block type carried.
type Unsupported struct {
	Kind     string
	RichText []Span
}

func (Paragraph) Type() string        { return "paragraph" }
func (h Heading) Type() string        { return fmt.Sprintf("heading_%d", clampLevel(h.Level)) }
func (BulletedListItem) Type() string { return "bulleted_list_item" }
func (NumberedListItem) Type() string { return "numbered_list_item" }
func (ToDo) Type() string             { return "to_do" }
func (Code) Type() string             { return "code" }
func (Quote) Type() string            { return "quote" }
func (Divider) Type() string          { return "divider" }
func (ChildPage) Type() string        { return "child_page" }
func (LinkToPage) Type() string       { return "link_to_page" }
func (Unsupported) Type() string      { return "unsupported" }

func (f File) Type() string {
	switch f.Kind {
	case "pdf", "image":
		return f.Kind
	}
	return "file"
}

func (Paragraph) payload()        {}
func (Heading) payload()          {}
func (BulletedListItem) payload() {}
func (NumberedListItem) payload() {}
func (ToDo) payload()             {}
func (Code) payload()             {}
func (Quote) payload()            {}
func (Divider) payload()          {}
func (ChildPage) payload()        {}
func (LinkToPage) payload()       {}
func (File) payload()             {}
func (Unsupported) payload()      {}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 3 {
		return 3
	}
	return level
}

// RichText returns the spans carried by p, or nil for variants without text.
func RichText(p Payload) []Span {
	switch v := p.(type) {
	case Paragraph:
		return v.RichText
	case Heading:
		return v.RichText
	case BulletedListItem:
		return v.RichText
	case NumberedListItem:
		return v.RichText
	case ToDo:
		return v.RichText
	case Code:
		return v.RichText
	case Quote:
		return v.RichText
	case Unsupported:
		return v.RichText
	}
	return nil
}

// WithRichText returns a copy of p carrying spans. Variants without rich
// text are returned unchanged.
func WithRichText(p Payload, spans []Span) Payload {
	switch v := p.(type) {
	case Paragraph:
		v.RichText = spans
		return v
	case Heading:
		v.RichText = spans
		return v
	case BulletedListItem:
		v.RichText = spans
		return v
	case NumberedListItem:
		v.RichText = spans
		return v
	case ToDo:
		v.RichText = spans
		return v
	case Code:
		v.RichText = spans
		return v
	case Quote:
		v.RichText = spans
		return v
	case Unsupported:
		v.RichText = spans
		return v
	}
	return p
}
