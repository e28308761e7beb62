package attachment

import (
	"strings"
	"testing"

	"github.com/dgallion1/notionmd/internal/block"
)

func types(doc *block.Document) []string {
	var out []string
	for _, b := range doc.Blocks {
		out = append(out, b.Type())
	}
	return out
}

func textOf(b *block.Block) string {
	return block.PlainText(block.RichText(b.Payload))
}

func TestMarkdownConverter_Blocks(t *testing.T) {
	input := "# API Reference\n\nSome **intro** text\nover two lines.\n\n#### Deep\n\n- one\n- two\n\n1. first\n\n```go\nfmt.Println()\n```\n\n> quoted\n\n---\n"

	c := &MarkdownConverter{}
	doc, err := c.Convert(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "api" {
		t.Errorf("expected title %q, got %q", "api", doc.Title)
	}

	want := []string{"heading_1", "paragraph", "heading_3", "bulleted_list_item", "bulleted_list_item",
		"numbered_list_item", "code", "quote", "divider"}
	if got := types(doc); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected types %v, got %v", want, got)
	}

	para := doc.Blocks[1].Payload.(block.Paragraph)
	if textOf(doc.Blocks[1]) != "Some intro text over two lines." {
		t.Errorf("unexpected paragraph text %q", textOf(doc.Blocks[1]))
	}
	if len(para.RichText) < 2 || !para.RichText[1].Annotations.Bold {
		t.Errorf("expected bold styling to survive, got %+v", para.RichText)
	}

	code := doc.Blocks[6].Payload.(block.Code)
	if code.Language != "go" || textOf(doc.Blocks[6]) != "fmt.Println()" {
		t.Errorf("unexpected code block %+v", code)
	}
}

func TestMarkdownConverter_Empty(t *testing.T) {
	doc, err := (&MarkdownConverter{}).Convert(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Blocks) != 0 {
		t.Errorf("expected no blocks, got %d", len(doc.Blocks))
	}
}
