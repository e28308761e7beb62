package notion

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeBlock_Paragraph(t *testing.T) {
	raw := `{
		"object": "block",
		"id": "b1",
		"type": "paragraph",
		"has_children": true,
		"paragraph": {
			"rich_text": [
				{"type": "text", "plain_text": "Hello ", "annotations": {"bold": false, "color": "default"}, "text": {"content": "Hello "}},
				{"type": "text", "plain_text": "world", "href": "https://example.com",
				 "annotations": {"bold": true, "italic": true, "color": "red"},
				 "text": {"content": "world", "link": {"url": "https://example.com"}}}
			]
		}
	}`
	b, err := DecodeBlock([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ID != "b1" || !b.HasChildren || b.Type() != "paragraph" {
		t.Fatalf("unexpected block header: %+v", b)
	}
	want := []block.Span{
		{Content: "Hello "},
		{Content: "world", Link: "https://example.com", Annotations: block.Annotations{Bold: true, Italic: true, Color: "red"}},
	}
	if diff := cmp.Diff(want, block.RichText(b.Payload)); diff != "" {
		t.Errorf("rich text mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBlock_Variants(t *testing.T) {
	tests := []struct {
		raw  string
		want block.Payload
	}{
		{`{"id":"h","type":"heading_2","heading_2":{"rich_text":[]}}`, block.Heading{Level: 2}},
		{`{"id":"t","type":"to_do","to_do":{"rich_text":[],"checked":true}}`, block.ToDo{Checked: true}},
		{`{"id":"c","type":"code","code":{"rich_text":[],"language":"go"}}`, block.Code{Language: "go"}},
		{`{"id":"d","type":"divider","divider":{}}`, block.Divider{}},
		{`{"id":"p","type":"child_page","child_page":{"title":"Sub"}}`, block.ChildPage{Title: "Sub"}},
		{`{"id":"l","type":"link_to_page","link_to_page":{"type":"page_id","page_id":"abc"}}`, block.LinkToPage{PageID: "abc"}},
		{`{"id":"f","type":"pdf","pdf":{"type":"external","external":{"url":"https://x/a.pdf"}}}`, block.File{Kind: "pdf", URL: "https://x/a.pdf"}},
		{`{"id":"f2","type":"file","file":{"type":"file","name":"a.txt","file":{"url":"https://s3/a.txt"}}}`, block.File{Kind: "file", Name: "a.txt", URL: "https://s3/a.txt"}},
	}
	for _, tt := range tests {
		b, err := DecodeBlock([]byte(tt.raw))
		if err != nil {
			t.Fatalf("decode %s: %v", tt.raw, err)
		}
		if diff := cmp.Diff(tt.want, b.Payload); diff != "" {
			t.Errorf("%s: payload mismatch (-want +got):\n%s", tt.raw, diff)
		}
	}
}

func TestDecodeBlock_UnknownTypeKeepsText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"id":"x","type":"callout","callout":{"rich_text":[{"type":"text","plain_text":"Note"}]}}`, "Note"},
		{`{"id":"x","type":"table_row","table_row":{"cells":[[{"type":"text","plain_text":"a"}],[{"type":"text","plain_text":"b"}]]}}`, "a | b"},
		{`{"id":"x","type":"bookmark","bookmark":{"url":"https://example.com","caption":[]}}`, "https://example.com"},
		{`{"id":"x","type":"equation","equation":{"expression":"e=mc^2"}}`, "e=mc^2"},
		{`{"id":"x","type":"brand_new_type","brand_new_type":"not an object"}`, ""},
		{`{"id":"x","type":"link_to_page","link_to_page":{"type":"database_id","database_id":"db"}}`, ""},
	}
	for _, tt := range tests {
		b, err := DecodeBlock([]byte(tt.raw))
		if err != nil {
			t.Fatalf("decode %s: %v", tt.raw, err)
		}
		if b.Type() != "unsupported" {
			t.Errorf("%s: expected unsupported, got %s", tt.raw, b.Type())
		}
		if got := block.PlainText(block.RichText(b.Payload)); got != tt.want {
			t.Errorf("%s: expected fallback text %q, got %q", tt.raw, tt.want, got)
		}
	}
}

func TestDecodeBlock_InvalidJSON(t *testing.T) {
	if _, err := DecodeBlock([]byte(`{"id":`)); err == nil {
		t.Error("expected error for truncated json")
	}
}

func TestDecodeRichText_Mentions(t *testing.T) {
	var in []wireRichText
	raw := `[
		{"type":"mention","plain_text":"Other page","href":"https://www.notion.so/abc",
		 "mention":{"type":"page","page":{"id":"abc"}},"annotations":{}},
		{"type":"mention","plain_text":"@Ann","mention":{"type":"user","user":{"id":"u1"}},"annotations":{}},
		{"type":"mention","plain_text":"2024-01-01","mention":{"type":"date","date":{"start":"2024-01-01"}},"annotations":{}}
	]`
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatal(err)
	}
	want := []block.Span{
		{Content: "Other page", Mention: &block.Mention{Type: "page", ID: "abc"}},
		{Content: "@Ann", Mention: &block.Mention{Type: "user", ID: "u1"}},
		{Content: "2024-01-01"},
	}
	if diff := cmp.Diff(want, decodeRichText(in)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRichText_SplitsLongContent(t *testing.T) {
	long := strings.Repeat("é", maxTextLength+10)
	out := EncodeRichText([]block.Span{{Content: long, Annotations: block.Annotations{Bold: true}}})
	if len(out) != 2 {
		t.Fatalf("expected 2 rich text objects, got %d", len(out))
	}
	if n := len([]rune(out[0].Text.Content)); n != maxTextLength {
		t.Errorf("expected first part of %d runes, got %d", maxTextLength, n)
	}
	for _, rt := range out {
		if !rt.Annotations.Bold || rt.Annotations.Color != "default" {
			t.Errorf("annotations not carried: %+v", rt.Annotations)
		}
	}
}

func TestEncodeRichText_MentionAndLink(t *testing.T) {
	out := EncodeRichText([]block.Span{
		{Content: "See", Link: "https://example.com"},
		{Content: "Page", Mention: &block.Mention{Type: "page", ID: "p1"}},
	})
	if out[0].Type != "text" || out[0].Text.Link == nil || out[0].Text.Link.URL != "https://example.com" {
		t.Errorf("unexpected link encoding: %+v", out[0])
	}
	if out[1].Type != "mention" || out[1].Mention.Page == nil || out[1].Mention.Page.ID != "p1" {
		t.Errorf("unexpected mention encoding: %+v", out[1])
	}
}

func TestEncodeBlock_NestsChildren(t *testing.T) {
	b := &block.Block{
		Payload: block.BulletedListItem{RichText: []block.Span{{Content: "parent"}}},
		Children: []*block.Block{
			{Payload: block.Code{RichText: []block.Span{{Content: "x := 1"}}}},
			{ID: "sub", Payload: block.ChildPage{Title: "skipped"}},
		},
	}
	enc, ok := EncodeBlock(b)
	if !ok {
		t.Fatal("expected bulleted item to encode")
	}
	data, err := json.Marshal(enc)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Type string `json:"type"`
		Item struct {
			Children []struct {
				Type string `json:"type"`
				Code struct {
					Language string `json:"language"`
				} `json:"code"`
			} `json:"children"`
		} `json:"bulleted_list_item"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "bulleted_list_item" {
		t.Errorf("expected bulleted_list_item, got %s", decoded.Type)
	}
	if len(decoded.Item.Children) != 1 {
		t.Fatalf("expected child page to be skipped, got %d children", len(decoded.Item.Children))
	}
	if decoded.Item.Children[0].Code.Language != "plain text" {
		t.Errorf("expected default language, got %q", decoded.Item.Children[0].Code.Language)
	}
}

func TestEncodeUpdate(t *testing.T) {
	if _, ok := EncodeUpdate(&block.Block{ID: "d", Payload: block.Divider{}}); ok {
		t.Error("divider should not be updatable")
	}
	if _, ok := EncodeUpdate(&block.Block{ID: "c", Payload: block.ChildPage{}}); ok {
		t.Error("child page should not be updatable")
	}
	body, ok := EncodeUpdate(&block.Block{ID: "t", Payload: block.ToDo{Checked: true}})
	if !ok {
		t.Fatal("to_do should be updatable")
	}
	inner, _ := body["to_do"].(map[string]any)
	if inner["checked"] != true {
		t.Errorf("expected checked=true, got %v", body)
	}
	if _, hasChildren := inner["children"]; hasChildren {
		t.Error("update body must not carry children")
	}
}

func TestExtractTitle(t *testing.T) {
	title := func(s string) wireProperty {
		return wireProperty{Type: "title", Title: []wireRichText{{PlainText: s}}}
	}
	tests := []struct {
		name  string
		props map[string]wireProperty
		want  string
	}{
		{"name key", map[string]wireProperty{"Name": title("Project")}, "Project"},
		{"renamed", map[string]wireProperty{"Task": title("Ship it"), "Status": {Type: "select"}}, "Ship it"},
		{"prefers Name", map[string]wireProperty{"A": title("first"), "Name": title("named")}, "named"},
		{"empty", map[string]wireProperty{"Name": {Type: "title"}}, "Untitled"},
		{"none", nil, "Untitled"},
	}
	for _, tt := range tests {
		if got := ExtractTitle(tt.props); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}
