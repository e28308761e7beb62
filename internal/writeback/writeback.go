// Package writeback applies parsed Markdown to an existing page and posts
// comments.
package writeback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/dgallion1/notionmd/internal/retry"
)

// maxAppend is the upstream limit on children per append request.
const maxAppend = 100

// API is the subset of the Notion client used to write.
type API interface {
	UpdateBlock(ctx context.Context, b *block.Block) error
	AppendChildren(ctx context.Context, parentID string, blocks []*block.Block, after string) ([]string, error)
	CreateComment(ctx context.Context, req notion.CommentRequest) (string, error)
}

// Writer sends block and comment changes upstream.
type Writer struct {
	API   API
	Retry retry.Policy
	Log   *slog.Logger
}

// Result summarises an Apply call.
type Result struct {
	Updated    int      `json:"updated"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	CreatedIDs []string `json:"created_ids"`
}

func (w *Writer) logger() *slog.Logger {
	if w.Log == nil {
		return slog.Default()
	}
	return w.Log
}

// Apply writes blocks under pageID. Blocks carrying an id update that block
// in place; blocks without one are created after their preceding sibling.
// Blocks missing from blocks are left untouched.
func (w *Writer) Apply(ctx context.Context, pageID string, blocks []*block.Block) (*Result, error) {
	res := &Result{}
	if err := w.apply(ctx, pageID, blocks, res); err != nil {
		return res, err
	}
	w.logger().Info("page written",
		"page_id", pageID,
		"updated", res.Updated,
		"created", res.Created,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (w *Writer) apply(ctx context.Context, parentID string, blocks []*block.Block, res *Result) error {
	prev := ""
	var pending []*block.Block

	flush := func() error {
		for len(pending) > 0 {
			n := min(len(pending), maxAppend)
			batch := pending[:n]
			pending = pending[n:]

			var ids []string
			_, err := w.Retry.Do(ctx, func(ctx context.Context) error {
				var callErr error
				ids, callErr = w.API.AppendChildren(ctx, parentID, batch, prev)
				return callErr
			})
			if err != nil {
				return err
			}
			res.Created += len(ids)
			res.CreatedIDs = append(res.CreatedIDs, ids...)
			if len(ids) > 0 {
				prev = ids[len(ids)-1]
			}
		}
		return nil
	}

	for _, b := range blocks {
		if b.ID == "" {
			pending = append(pending, b)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if _, ok := notion.EncodeUpdate(b); ok {
			_, err := w.Retry.Do(ctx, func(ctx context.Context) error {
				return w.API.UpdateBlock(ctx, b)
			})
			if err != nil {
				return err
			}
			res.Updated++
		} else {
			res.Skipped++
		}
		prev = b.ID
		if len(b.Children) > 0 {
			if err := w.apply(ctx, b.ID, b.Children, res); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Target selects where a comment goes. BlockID wins when set.
type Target struct {
	PageID  string
	BlockID string
}

// Comment posts commentMarkdown on target with a custom display name.
func (w *Writer) Comment(ctx context.Context, target Target, commentMarkdown, displayName string) (string, error) {
	req := notion.CommentRequest{
		RichText:    CommentRichText(commentMarkdown),
		DisplayName: displayName,
	}
	if target.BlockID != "" {
		req.BlockID = target.BlockID
	} else {
		req.PageID = target.PageID
	}
	if len(req.RichText) == 0 {
		return "", fmt.Errorf("comment is empty")
	}

	var id string
	_, err := w.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		id, callErr = w.API.CreateComment(ctx, req)
		return callErr
	})
	return id, err
}

// CommentRichText converts comment Markdown to rich text, one line per
// block. Markdown that fails to parse is posted as plain text.
func CommentRichText(md string) []block.Span {
	doc, err := markdown.Parse(md)
	if err != nil {
		if md == "" {
			return nil
		}
		return []block.Span{{Content: md}}
	}

	var out []block.Span
	block.Walk(doc.Blocks, func(b *block.Block, _ int) bool {
		rt := block.RichText(b.Payload)
		if len(rt) == 0 {
			return true
		}
		if len(out) > 0 {
			out = append(out, block.Span{Content: "\n"})
		}
		if prefix := linePrefix(b); prefix != "" {
			out = append(out, block.Span{Content: prefix})
		}
		out = append(out, rt...)
		return true
	})
	return block.MergeSpans(out)
}

func linePrefix(b *block.Block) string {
	switch p := b.Payload.(type) {
	case block.BulletedListItem, block.NumberedListItem:
		return "• "
	case block.ToDo:
		if p.Checked {
			return "☑ "
		}
		return "☐ "
	}
	return ""
}
