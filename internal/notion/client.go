package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/retry"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	DefaultVersion = "2022-06-28"

	pageSize = 100
)

// Client communicates with the Notion HTTP API.
type Client struct {
	baseURL    string
	token      string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client. ratePerSec <= 0 disables client-side rate
// limiting.
func NewClient(baseURL, token, version string, ratePerSec float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		version: version,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
}

// APIError is a non-retryable error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsAccessDenied reports whether err is a 403 or 404 from the API. The
// comments endpoint answers this way when the integration lacks the
// comment capability.
func IsAccessDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusNotFound
}

// BlockList is one page of a "retrieve block children" response.
type BlockList struct {
	Results    []*block.Block
	NextCursor string
	HasMore    bool
}

// ListChildren retrieves one page of a block's children.
func (c *Client) ListChildren(ctx context.Context, blockID, cursor string) (BlockList, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var resp wireList
	if err := c.do(ctx, http.MethodGet, "/v1/blocks/"+url.PathEscape(blockID)+"/children?"+q.Encode(), nil, &resp); err != nil {
		return BlockList{}, fmt.Errorf("list children %s: %w", blockID, err)
	}
	list := BlockList{HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		list.NextCursor = *resp.NextCursor
	}
	for i, raw := range resp.Results {
		b, err := decodeBlock(raw)
		if err != nil {
			return BlockList{}, fmt.Errorf("decode block %d of %s: %w", i, blockID, err)
		}
		list.Results = append(list.Results, b)
	}
	return list, nil
}

// Page is the subset of page metadata the service uses.
type Page struct {
	ID    string
	Title string
	URL   string
}

// RetrievePage fetches page metadata and extracts its title.
func (c *Client) RetrievePage(ctx context.Context, pageID string) (*Page, error) {
	var resp wirePage
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(pageID), nil, &resp); err != nil {
		return nil, fmt.Errorf("retrieve page %s: %w", pageID, err)
	}
	return &Page{
		ID:    resp.ID,
		Title: ExtractTitle(resp.Properties),
		URL:   resp.URL,
	}, nil
}

// CommentList is one page of comments for a block.
type CommentList struct {
	Results    []block.Comment
	NextCursor string
	HasMore    bool
}

// ListComments retrieves one page of unresolved comments on a block. Authors
// carry only their user id.
func (c *Client) ListComments(ctx context.Context, blockID, cursor string) (CommentList, error) {
	q := url.Values{}
	q.Set("block_id", blockID)
	q.Set("page_size", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var resp wireCommentList
	if err := c.do(ctx, http.MethodGet, "/v1/comments?"+q.Encode(), nil, &resp); err != nil {
		return CommentList{}, fmt.Errorf("list comments %s: %w", blockID, err)
	}
	list := CommentList{HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		list.NextCursor = *resp.NextCursor
	}
	for _, wc := range resp.Results {
		list.Results = append(list.Results, block.Comment{
			ID:          wc.ID,
			BlockID:     blockID,
			Author:      block.User{ID: wc.CreatedBy.ID},
			CreatedTime: wc.CreatedTime,
			RichText:    decodeRichText(wc.RichText),
		})
	}
	return list, nil
}

// RetrieveUser looks up a user's display name and, for people, email.
func (c *Client) RetrieveUser(ctx context.Context, userID string) (block.User, error) {
	var resp wireUser
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID), nil, &resp); err != nil {
		return block.User{}, fmt.Errorf("retrieve user %s: %w", userID, err)
	}
	u := block.User{ID: userID, Name: resp.Name}
	if resp.Type == "person" && resp.Person != nil {
		u.Email = resp.Person.Email
	}
	return u, nil
}

// CommentRequest describes a new comment. Exactly one of PageID or BlockID
// should be set.
type CommentRequest struct {
	PageID      string
	BlockID     string
	RichText    []block.Span
	DisplayName string // Custom author name shown in the UI
}

// CreateComment posts a comment and returns its id.
func (c *Client) CreateComment(ctx context.Context, req CommentRequest) (string, error) {
	body := wireCommentCreate{RichText: EncodeRichText(req.RichText)}
	switch {
	case req.BlockID != "":
		body.Parent = map[string]string{"block_id": req.BlockID}
	case req.PageID != "":
		body.Parent = map[string]string{"page_id": req.PageID}
	default:
		return "", fmt.Errorf("create comment: no parent")
	}
	if req.DisplayName != "" {
		body.DisplayName = &wireDisplayName{Type: "custom", Custom: wireCustomName{Name: req.DisplayName}}
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/comments", body, &resp); err != nil {
		return "", fmt.Errorf("create comment: %w", err)
	}
	return resp.ID, nil
}

// UpdateBlock replaces the content of an existing block.
func (c *Client) UpdateBlock(ctx context.Context, b *block.Block) error {
	if b.ID == "" {
		return fmt.Errorf("update block: missing id")
	}
	body, ok := EncodeUpdate(b)
	if !ok {
		return fmt.Errorf("update block %s: type %s cannot be updated", b.ID, b.Type())
	}
	if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(b.ID), body, nil); err != nil {
		return fmt.Errorf("update block %s: %w", b.ID, err)
	}
	return nil
}

// AppendChildren creates blocks under parentID, after the sibling with id
// after when set, and returns the ids of the created top-level blocks.
func (c *Client) AppendChildren(ctx context.Context, parentID string, blocks []*block.Block, after string) ([]string, error) {
	body := wireAppend{After: after}
	for _, b := range blocks {
		if enc, ok := EncodeBlock(b); ok {
			body.Children = append(body.Children, enc)
		}
	}
	if len(body.Children) == 0 {
		return nil, nil
	}
	var resp wireList
	if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(parentID)+"/children", body, &resp); err != nil {
		return nil, fmt.Errorf("append children to %s: %w", parentID, err)
	}
	ids := make([]string, 0, len(resp.Results))
	for _, raw := range resp.Results {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err == nil {
			ids = append(ids, head.ID)
		}
	}
	return ids, nil
}

// do issues one request. 429 and 5xx responses, and transport failures, are
// reported as *retry.RetryableError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Notion-Version", c.version)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retry.RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &retry.RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var wireErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &wireErr) == nil && wireErr.Message != "" {
			apiErr.Code = wireErr.Code
			apiErr.Message = wireErr.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
