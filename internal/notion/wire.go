package notion

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/notionmd/internal/block"
)

// maxTextLength is the API limit for a single rich text object's content.
const maxTextLength = 2000

type wireList struct {
	Object     string            `json:"object"`
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

type wireRichText struct {
	Type        string          `json:"type"`
	PlainText   string          `json:"plain_text,omitempty"`
	Href        *string         `json:"href,omitempty"`
	Annotations wireAnnotations `json:"annotations"`
	Text        *wireText       `json:"text,omitempty"`
	Mention     *wireMention    `json:"mention,omitempty"`
	Equation    *wireEquation   `json:"equation,omitempty"`
}

type wireText struct {
	Content string    `json:"content"`
	Link    *wireLink `json:"link,omitempty"`
}

type wireLink struct {
	URL string `json:"url"`
}

type wireAnnotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color"`
}

type wireMention struct {
	Type     string    `json:"type"`
	Page     *wireRef  `json:"page,omitempty"`
	Database *wireRef  `json:"database,omitempty"`
	User     *wireRef  `json:"user,omitempty"`
	Date     *wireDate `json:"date,omitempty"`
}

type wireRef struct {
	ID string `json:"id"`
}

type wireDate struct {
	Start string `json:"start"`
}

type wireEquation struct {
	Expression string `json:"expression"`
}

type wireFileRef struct {
	URL string `json:"url"`
}

// wirePayload is the union of the type-keyed block bodies this service reads.
type wirePayload struct {
	RichText   []wireRichText `json:"rich_text,omitempty"`
	Checked    bool           `json:"checked"`
	Language   string         `json:"language,omitempty"`
	Title      string         `json:"title,omitempty"`
	Type       string         `json:"type,omitempty"`
	PageID     string         `json:"page_id,omitempty"`
	DatabaseID string         `json:"database_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	External   *wireFileRef   `json:"external,omitempty"`
	File       *wireFileRef   `json:"file,omitempty"`
}

// wireFallback collects whatever text an unknown block type may carry.
type wireFallback struct {
	RichText   []wireRichText   `json:"rich_text"`
	Caption    []wireRichText   `json:"caption"`
	Cells      [][]wireRichText `json:"cells"`
	URL        string           `json:"url"`
	Expression string           `json:"expression"`
	Title      string           `json:"title"`
}

type wirePage struct {
	ID         string                  `json:"id"`
	URL        string                  `json:"url"`
	Properties map[string]wireProperty `json:"properties"`
}

type wireProperty struct {
	Type  string         `json:"type"`
	Title []wireRichText `json:"title"`
}

type wireCommentList struct {
	Results    []wireComment `json:"results"`
	NextCursor *string       `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

type wireComment struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"created_time"`
	CreatedBy   wireRef        `json:"created_by"`
	RichText    []wireRichText `json:"rich_text"`
}

type wireUser struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Person *struct {
		Email string `json:"email"`
	} `json:"person"`
}

type wireCommentCreate struct {
	Parent      map[string]string `json:"parent"`
	RichText    []wireRichText    `json:"rich_text"`
	DisplayName *wireDisplayName  `json:"display_name,omitempty"`
}

type wireDisplayName struct {
	Type   string         `json:"type"`
	Custom wireCustomName `json:"custom"`
}

type wireCustomName struct {
	Name string `json:"name"`
}

type wireAppend struct {
	Children []map[string]any `json:"children"`
	After    string           `json:"after,omitempty"`
}

// DecodeBlock converts one upstream block object into the block model.
func DecodeBlock(raw []byte) (*block.Block, error) {
	return decodeBlock(raw)
}

func decodeBlock(raw json.RawMessage) (*block.Block, error) {
	var head struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		HasChildren bool   `json:"has_children"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode block header: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode block fields: %w", err)
	}
	return &block.Block{
		ID:          head.ID,
		Payload:     decodePayload(head.Type, fields[head.Type]),
		HasChildren: head.HasChildren,
	}, nil
}

func decodePayload(typ string, body json.RawMessage) block.Payload {
	var p wirePayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			return decodeFallback(typ, body)
		}
	}
	spans := decodeRichText(p.RichText)

	switch typ {
	case "paragraph":
		return block.Paragraph{RichText: spans}
	case "heading_1", "heading_2", "heading_3":
		return block.Heading{Level: int(typ[len(typ)-1] - '0'), RichText: spans}
	case "bulleted_list_item":
		return block.BulletedListItem{RichText: spans}
	case "numbered_list_item":
		return block.NumberedListItem{RichText: spans}
	case "to_do":
		return block.ToDo{Checked: p.Checked, RichText: spans}
	case "code":
		return block.Code{Language: p.Language, RichText: spans}
	case "quote":
		return block.Quote{RichText: spans}
	case "divider":
		return block.Divider{}
	case "child_page":
		return block.ChildPage{Title: p.Title}
	case "link_to_page":
		if p.Type == "page_id" && p.PageID != "" {
			return block.LinkToPage{PageID: p.PageID}
		}
	case "file", "pdf", "image":
		f := block.File{Kind: typ, Name: p.Name}
		switch {
		case p.File != nil:
			f.URL = p.File.URL
		case p.External != nil:
			f.URL = p.External.URL
		}
		if f.URL != "" {
			return f
		}
	}
	return decodeFallback(typ, body)
}

func decodeFallback(typ string, body json.RawMessage) block.Payload {
	u := block.Unsupported{Kind: typ}
	var fb wireFallback
	if len(body) == 0 || json.Unmarshal(body, &fb) != nil {
		return u
	}
	switch {
	case len(fb.RichText) > 0:
		u.RichText = decodeRichText(fb.RichText)
	case len(fb.Cells) > 0:
		for i, cell := range fb.Cells {
			if i > 0 {
				u.RichText = append(u.RichText, block.Span{Content: " | "})
			}
			u.RichText = append(u.RichText, decodeRichText(cell)...)
		}
	case len(fb.Caption) > 0:
		u.RichText = decodeRichText(fb.Caption)
	case fb.Title != "":
		u.RichText = []block.Span{{Content: fb.Title}}
	case fb.URL != "":
		u.RichText = []block.Span{{Content: fb.URL, Link: fb.URL}}
	case fb.Expression != "":
		u.RichText = []block.Span{{Content: fb.Expression, Annotations: block.Annotations{Code: true}}}
	}
	return u
}

func decodeRichText(in []wireRichText) []block.Span {
	if len(in) == 0 {
		return nil
	}
	out := make([]block.Span, 0, len(in))
	for _, rt := range in {
		s := block.Span{
			Content: rt.PlainText,
			Annotations: block.Annotations{
				Bold:          rt.Annotations.Bold,
				Italic:        rt.Annotations.Italic,
				Strikethrough: rt.Annotations.Strikethrough,
				Underline:     rt.Annotations.Underline,
				Code:          rt.Annotations.Code,
			},
		}
		if c := rt.Annotations.Color; c != "" && c != "default" {
			s.Annotations.Color = c
		}
		if s.Content == "" && rt.Text != nil {
			s.Content = rt.Text.Content
		}
		switch rt.Type {
		case "mention":
			if m := decodeMention(rt.Mention); m != nil {
				s.Mention = m
			} else if rt.Href != nil {
				s.Link = *rt.Href
			}
		case "equation":
			if s.Content == "" && rt.Equation != nil {
				s.Content = rt.Equation.Expression
			}
		default:
			if rt.Href != nil {
				s.Link = *rt.Href
			} else if rt.Text != nil && rt.Text.Link != nil {
				s.Link = rt.Text.Link.URL
			}
		}
		out = append(out, s)
	}
	return out
}

func decodeMention(m *wireMention) *block.Mention {
	if m == nil {
		return nil
	}
	var ref *wireRef
	switch m.Type {
	case "page":
		ref = m.Page
	case "database":
		ref = m.Database
	case "user":
		ref = m.User
	}
	if ref == nil || ref.ID == "" {
		return nil
	}
	return &block.Mention{Type: m.Type, ID: ref.ID}
}

// EncodeRichText converts spans into API rich text objects, splitting
// contents longer than the per-object limit.
func EncodeRichText(spans []block.Span) []wireRichText {
	out := make([]wireRichText, 0, len(spans))
	for _, s := range spans {
		ann := wireAnnotations{
			Bold:          s.Annotations.Bold,
			Italic:        s.Annotations.Italic,
			Strikethrough: s.Annotations.Strikethrough,
			Underline:     s.Annotations.Underline,
			Code:          s.Annotations.Code,
			Color:         s.Annotations.Color,
		}
		if ann.Color == "" {
			ann.Color = "default"
		}
		if s.Mention != nil && s.Mention.ID != "" && s.Mention.Type != "date" {
			m := &wireMention{Type: s.Mention.Type}
			ref := &wireRef{ID: s.Mention.ID}
			switch s.Mention.Type {
			case "database":
				m.Database = ref
			case "user":
				m.User = ref
			default:
				m.Type = "page"
				m.Page = ref
			}
			out = append(out, wireRichText{Type: "mention", Mention: m, Annotations: ann})
			continue
		}
		for _, part := range splitText(s.Content, maxTextLength) {
			t := &wireText{Content: part}
			if s.Link != "" {
				t.Link = &wireLink{URL: s.Link}
			}
			out = append(out, wireRichText{Type: "text", Text: t, Annotations: ann})
		}
	}
	return out
}

// splitText cuts s into pieces of at most limit runes.
func splitText(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			parts = append(parts, b.String())
			b.Reset()
			n = 0
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// EncodeBlock converts a block (and its children) to the shape accepted by
// the append-children endpoint. Blocks that cannot be created through that
// endpoint (child pages) report false.
func EncodeBlock(b *block.Block) (map[string]any, bool) {
	typ, body, ok := encodeBody(b.Payload)
	if !ok {
		return nil, false
	}
	var children []map[string]any
	for _, c := range b.Children {
		if enc, ok := EncodeBlock(c); ok {
			children = append(children, enc)
		}
	}
	if len(children) > 0 {
		body["children"] = children
	}
	return map[string]any{
		"object": "block",
		"type":   typ,
		typ:      body,
	}, true
}

// EncodeUpdate builds the body for updating an existing block in place.
func EncodeUpdate(b *block.Block) (map[string]any, bool) {
	typ, body, ok := encodeBody(b.Payload)
	if !ok {
		return nil, false
	}
	if _, isDivider := b.Payload.(block.Divider); isDivider {
		return nil, false
	}
	return map[string]any{typ: body}, true
}

func encodeBody(p block.Payload) (string, map[string]any, bool) {
	switch v := p.(type) {
	case block.Paragraph, block.Heading, block.BulletedListItem, block.NumberedListItem, block.Quote:
		return p.Type(), map[string]any{"rich_text": EncodeRichText(block.RichText(p))}, true
	case block.ToDo:
		return p.Type(), map[string]any{"rich_text": EncodeRichText(v.RichText), "checked": v.Checked}, true
	case block.Code:
		lang := v.Language
		if lang == "" {
			lang = "plain text"
		}
		return p.Type(), map[string]any{"rich_text": EncodeRichText(v.RichText), "language": lang}, true
	case block.Divider:
		return p.Type(), map[string]any{}, true
	case block.LinkToPage:
		return p.Type(), map[string]any{"type": "page_id", "page_id": v.PageID}, true
	case block.File:
		body := map[string]any{"type": "external", "external": map[string]string{"url": v.URL}}
		if v.Kind == "file" && v.Name != "" {
			body["name"] = v.Name
		}
		return p.Type(), body, true
	case block.Unsupported:
		return "paragraph", map[string]any{"rich_text": EncodeRichText(v.RichText)}, true
	}
	return "", nil, false
}
