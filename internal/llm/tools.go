package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CommentToolName is the tool the model calls to comment on a block.
const CommentToolName = "notion_comment"

// maxCommentRunes bounds one comment posted by the model.
const maxCommentRunes = 10000

// ReviewInstructions is appended to the prompt page to explain the
// document format and the comment tool.
const ReviewInstructions = `The document you are reviewing is Markdown exported from Notion. Every block is preceded by a line of the form "block_id: <id>". Pages referenced by the document follow it, each introduced by a front matter header with its page_id.

To leave feedback on a specific block, call the notion_comment tool with that block's id and the comment in Markdown. Keep each comment focused on the block it is attached to. When you are done, reply with a short overall summary; it is posted as a comment on the page.`

// CommentTool describes the notion_comment function.
var CommentTool = Tool{
	Name:        CommentToolName,
	Description: "Add a comment to a specific block in the Notion document",
	InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "block_id": {"type": "string", "description": "The ID of the block to comment on (found in the block_id lines in the document)"},
    "comment_markdown": {"type": "string", "description": "The comment content in Markdown format"}
  },
  "required": ["block_id", "comment_markdown"]
}`),
}

// CommentArgs are the arguments of a notion_comment call.
type CommentArgs struct {
	BlockID         string `json:"block_id"`
	CommentMarkdown string `json:"comment_markdown"`
}

var blockIDRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Validate checks the arguments the model produced.
func (a CommentArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BlockID, validation.Required, validation.Length(1, 64), validation.Match(blockIDRe)),
		validation.Field(&a.CommentMarkdown, validation.Required, validation.Length(1, maxCommentRunes)),
	)
}

// ParseCommentArgs decodes and validates tool input.
func ParseCommentArgs(input json.RawMessage) (CommentArgs, error) {
	var args CommentArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return args, fmt.Errorf("decode %s input: %w", CommentToolName, err)
	}
	args.BlockID = strings.TrimSpace(args.BlockID)
	args.CommentMarkdown = strings.TrimSpace(args.CommentMarkdown)
	if err := args.Validate(); err != nil {
		return args, fmt.Errorf("invalid %s input: %w", CommentToolName, err)
	}
	return args, nil
}

// BuildSystemPrompt combines the prompt page with the review instructions.
func BuildSystemPrompt(promptTitle, promptMarkdown string) string {
	var sb strings.Builder
	if promptTitle != "" {
		sb.WriteString("# " + promptTitle + "\n\n")
	}
	sb.WriteString(strings.TrimSpace(promptMarkdown))
	sb.WriteString("\n\n---\n")
	sb.WriteString(ReviewInstructions)
	return sb.String()
}
