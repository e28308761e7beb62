package llm

import (
	"context"
	"fmt"

	"github.com/dgallion1/notionmd/internal/retry"
)

// DefaultMaxRounds bounds the model replies requested in one conversation.
const DefaultMaxRounds = 5

// Completer sends one Messages API request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ToolHandler executes one tool call and returns its result text. An error
// is reported back to the model as a failed tool result.
type ToolHandler func(ctx context.Context, call ContentBlock) (string, error)

// Conversation runs a tool-using exchange with retries on each call.
type Conversation struct {
	Client    Completer
	Retry     retry.Policy
	MaxRounds int
	Handle    ToolHandler
}

// Run sends req and keeps answering tool calls until the model replies
// without one or MaxRounds replies were requested. It returns the last
// response and the number of tool calls handled.
func (c *Conversation) Run(ctx context.Context, req Request) (*Response, int, error) {
	rounds := c.MaxRounds
	if rounds <= 0 {
		rounds = DefaultMaxRounds
	}
	calls := 0
	messages := append([]Message(nil), req.Messages...)

	var resp *Response
	for round := 0; round < rounds; round++ {
		req.Messages = messages
		_, err := c.Retry.Do(ctx, func(ctx context.Context) error {
			var callErr error
			resp, callErr = c.Client.Complete(ctx, req)
			return callErr
		})
		if err != nil {
			return nil, calls, fmt.Errorf("llm round %d: %w", round+1, err)
		}

		uses := resp.ToolUses()
		if len(uses) == 0 || resp.StopReason != "tool_use" {
			return resp, calls, nil
		}

		messages = append(messages, Message{Role: "assistant", Content: resp.Content})
		results := make([]ContentBlock, 0, len(uses))
		for _, use := range uses {
			calls++
			result := ContentBlock{Type: "tool_result", ToolUseID: use.ID}
			out, err := c.handle(ctx, use)
			if err != nil {
				result.Content = err.Error()
				result.IsError = true
			} else {
				result.Content = out
			}
			results = append(results, result)
		}
		messages = append(messages, Message{Role: "user", Content: results})
	}
	return resp, calls, nil
}

func (c *Conversation) handle(ctx context.Context, use ContentBlock) (string, error) {
	if c.Handle == nil {
		return "", fmt.Errorf("no handler for tool %q", use.Name)
	}
	return c.Handle(ctx, use)
}
