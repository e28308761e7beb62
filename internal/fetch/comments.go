package fetch

import (
	"context"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/notion"
)

const unknownUser = "Unknown User"

// attachComments loads comments for every block in the tree. Author lookups
// are cached for the duration of the call.
func (f *Fetcher) attachComments(ctx context.Context, blocks []*block.Block) error {
	users := make(map[string]block.User)
	var walkErr error
	block.Walk(blocks, func(b *block.Block, _ int) bool {
		if walkErr != nil || b.ID == "" {
			return false
		}
		comments, err := f.blockComments(ctx, b.ID)
		if err != nil {
			walkErr = err
			return false
		}
		for i := range comments {
			comments[i].Author = f.resolveUser(ctx, users, comments[i].Author.ID)
		}
		b.Comments = comments
		return true
	})
	return walkErr
}

func (f *Fetcher) blockComments(ctx context.Context, blockID string) ([]block.Comment, error) {
	var out []block.Comment
	cursor := ""
	for {
		var page notion.CommentList
		attempts, err := f.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = f.Comments.ListComments(ctx, blockID, cursor)
			return err
		})
		if notion.IsAccessDenied(err) {
			// Integration lacks the read-comments capability.
			f.logger().Debug("comments unavailable", "block_id", blockID, "error", err)
			return nil, nil
		}
		if err != nil {
			return nil, &FetchError{BlockID: blockID, Cursor: cursor, Attempts: attempts, Err: err}
		}
		out = append(out, page.Results...)
		if !page.HasMore || page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func (f *Fetcher) resolveUser(ctx context.Context, cache map[string]block.User, id string) block.User {
	if id == "" {
		return block.User{Name: unknownUser}
	}
	if u, ok := cache[id]; ok {
		return u
	}
	u, err := f.Comments.RetrieveUser(ctx, id)
	if err != nil || u.Name == "" {
		if err != nil {
			f.logger().Warn("user lookup failed", "user_id", id, "error", err)
		}
		u = block.User{ID: id, Name: unknownUser}
	}
	cache[id] = u
	return u
}
