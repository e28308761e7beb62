package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Parse(t *testing.T) {
	in := strings.NewReader("---\npage_id: p1\ntitle: Plan\n---\n\nblock_id: a\n# Goals\n\n- item\n\n  nested")
	var out bytes.Buffer
	if err := run([]string{"parse"}, in, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "page p1 \"Plan\"\nheading_1 a \"Goals\"\nbulleted_list_item (new) \"item\"\n  paragraph (new) \"nested\"\n"
	if out.String() != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, out.String())
	}
}

func TestRun_ParseError(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"parse", "-"}, strings.NewReader("```\nopen"), &out)
	if err == nil || !strings.Contains(err.Error(), "unterminated code fence") {
		t.Errorf("expected unterminated fence error, got %v", err)
	}
}

func TestRun_MissingCommand(t *testing.T) {
	if err := run(nil, strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Error("expected an error without a command")
	}
}

func TestRun_NeedsToken(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "")
	err := run([]string{"--env-file", "does-not-exist.env", "render", "abc"}, strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "NOTION_TOKEN") {
		t.Errorf("expected missing token error, got %v", err)
	}
}
