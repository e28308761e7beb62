package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/dgallion1/notionmd/internal/retry"
)

// Lister retrieves one page of a block's children.
type Lister interface {
	ListChildren(ctx context.Context, blockID, cursor string) (notion.BlockList, error)
}

// CommentLister retrieves comments and their authors.
type CommentLister interface {
	ListComments(ctx context.Context, blockID, cursor string) (notion.CommentList, error)
	RetrieveUser(ctx context.Context, userID string) (block.User, error)
}

// PageGetter retrieves page metadata.
type PageGetter interface {
	RetrievePage(ctx context.Context, pageID string) (*notion.Page, error)
}

// FetchError reports a page request that failed after exhausting retries or
// with a permanent error.
type FetchError struct {
	BlockID  string
	Cursor   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Cursor != "" {
		return fmt.Sprintf("fetch %s (cursor %s) failed after %d attempt(s): %v", e.BlockID, e.Cursor, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.BlockID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher builds block trees. It is cheap to construct and holds no state
// between calls.
type Fetcher struct {
	Lister   Lister
	Comments CommentLister // Optional; nil skips comments
	Pages    PageGetter    // Optional; nil leaves titles empty
	Retry    retry.Policy
	MaxDepth int // 0 means unlimited
	Log      *slog.Logger
}

// New returns a fetcher using client for all lookups.
func New(client *notion.Client, policy retry.Policy, maxDepth int, withComments bool, log *slog.Logger) *Fetcher {
	f := &Fetcher{
		Lister:   client,
		Pages:    client,
		Retry:    policy,
		MaxDepth: maxDepth,
		Log:      log,
	}
	if withComments {
		f.Comments = client
	}
	return f
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Log == nil {
		return slog.Default()
	}
	return f.Log
}

// Children returns the immediate children of id, following pagination
// cursors until the upstream reports no more pages. Order is preserved.
func (f *Fetcher) Children(ctx context.Context, id string) ([]*block.Block, error) {
	var out []*block.Block
	cursor := ""
	for {
		var page notion.BlockList
		attempts, err := f.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = f.Lister.ListChildren(ctx, id, cursor)
			return err
		})
		if err != nil {
			return nil, &FetchError{BlockID: id, Cursor: cursor, Attempts: attempts, Err: err}
		}
		if attempts > 1 {
			f.logger().Info("page fetched after retry", "block_id", id, "attempts", attempts)
		}
		out = append(out, page.Results...)
		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// Fetch returns the full block tree under id. Nested children are fetched
// breadth-first from an explicit work queue. Child pages are references, not
// inline content, and are not descended into.
func (f *Fetcher) Fetch(ctx context.Context, id string) ([]*block.Block, error) {
	top, err := f.Children(ctx, id)
	if err != nil {
		return nil, err
	}

	type item struct {
		b     *block.Block
		depth int // depth of b's children
	}
	queue := make([]item, 0, len(top))
	for _, b := range top {
		queue = append(queue, item{b, 1})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if !it.b.HasChildren || it.b.ID == "" {
			continue
		}
		if _, ok := it.b.Payload.(block.ChildPage); ok {
			continue
		}
		if f.MaxDepth > 0 && it.depth > f.MaxDepth {
			f.logger().Debug("max depth reached", "block_id", it.b.ID, "depth", it.depth)
			continue
		}
		children, err := f.Children(ctx, it.b.ID)
		if err != nil {
			return nil, err
		}
		it.b.Children = children
		for _, c := range children {
			queue = append(queue, item{c, it.depth + 1})
		}
	}

	if f.Comments != nil {
		if err := f.attachComments(ctx, top); err != nil {
			return nil, err
		}
	}
	return top, nil
}

// Document fetches the page title and its block tree.
func (f *Fetcher) Document(ctx context.Context, id string) (*block.Document, error) {
	doc := &block.Document{ID: id}
	if f.Pages != nil {
		var page *notion.Page
		attempts, err := f.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = f.Pages.RetrievePage(ctx, id)
			return err
		})
		if err != nil {
			return nil, &FetchError{BlockID: id, Attempts: attempts, Err: err}
		}
		doc.Title = page.Title
	}
	blocks, err := f.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Blocks = blocks
	return doc, nil
}
