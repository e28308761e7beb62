package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/latency"
	"github.com/dgallion1/notionmd/internal/llm"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/dgallion1/notionmd/internal/retry"
	"github.com/dgallion1/notionmd/internal/writeback"
)

// Documents fetches one page as a block document.
type Documents interface {
	Document(ctx context.Context, id string) (*block.Document, error)
}

// ContextBuilder renders a page together with the pages it references.
type ContextBuilder interface {
	Assemble(ctx context.Context, rootID string, maxSize int) (*assemble.RenderedContext, error)
}

// Commenter posts Markdown comments to Notion.
type Commenter interface {
	Comment(ctx context.Context, target writeback.Target, commentMarkdown, displayName string) (string, error)
}

// Reviewed deduplicates reviews of identical contexts.
type Reviewed interface {
	MarkReviewed(key string) bool
	Forget(key string)
}

// WorkerOptions tune one review.
type WorkerOptions struct {
	MaxContextSize int
	MaxRounds      int
	Retry          retry.Policy
	Timings        *latency.Tracker
}

// Worker processes review jobs. It holds no per-job state and may be shared
// by several goroutines.
type Worker struct {
	docs     Documents
	contexts ContextBuilder
	llm      llm.Completer
	comments Commenter
	reviewed Reviewed
	log      *slog.Logger
	opts     WorkerOptions
}

func NewWorker(docs Documents, contexts ContextBuilder, completer llm.Completer, comments Commenter, reviewed Reviewed, log *slog.Logger, opts WorkerOptions) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		docs:     docs,
		contexts: contexts,
		llm:      completer,
		comments: comments,
		reviewed: reviewed,
		log:      log,
		opts:     opts,
	}
}

// Process runs the full review for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "page_id", job.PageID, "prompt_id", job.PromptID)

	// Phase 1: prompt page becomes the system prompt.
	job.SetStatus(StatusFetching, "fetching prompt")
	done := w.opts.Timings.Start(latency.PhasePromptFetch)
	prompt, err := w.docs.Document(ctx, job.PromptID)
	done(err)
	if err != nil {
		log.Error("prompt fetch failed", "error", err)
		job.AddError(fmt.Sprintf("prompt: %s", err))
		job.SetStatus(StatusFailed, "fetching prompt")
		return
	}
	system := llm.BuildSystemPrompt(prompt.Title, markdown.Render(&block.Document{Blocks: prompt.Blocks}))

	// Phase 2: changed page plus everything it references.
	job.SetStatus(StatusAssembling, "assembling context")
	done = w.opts.Timings.Start(latency.PhaseAssemble)
	rc, err := w.contexts.Assemble(ctx, job.PageID, w.opts.MaxContextSize)
	done(err)
	if err != nil {
		log.Error("context assembly failed", "error", err)
		job.AddError(fmt.Sprintf("context: %s", err))
		job.SetStatus(StatusFailed, "assembling context")
		return
	}
	if len(rc.Sections) > 0 {
		job.SetTitle(rc.Sections[0].Title)
	}
	hash := ContentHashHex([]byte(job.PromptID + "\x00" + system + "\x00" + rc.Text))
	job.SetContext(rc.Size, rc.Unit.String(), len(rc.Sections), rc.Truncated, hash)
	log.Info("context assembled", "size", rc.Size, "unit", rc.Unit.String(), "documents", len(rc.Sections), "truncated", rc.Truncated)

	if w.reviewed != nil && !w.reviewed.MarkReviewed(hash) {
		log.Info("context already reviewed, skipping")
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}

	// Phase 3: conversation with the comment tool.
	job.SetStatus(StatusPrompting, "prompting")
	blockIDs := pageBlockIDs(rc)
	conv := &llm.Conversation{
		Client:    w.llm,
		Retry:     w.opts.Retry,
		MaxRounds: w.opts.MaxRounds,
		Handle: func(ctx context.Context, call llm.ContentBlock) (string, error) {
			job.IncrToolCalls()
			return w.handleTool(ctx, log, job, prompt.Title, blockIDs, call)
		},
	}
	done = w.opts.Timings.Start(latency.PhaseReview)
	resp, _, err := conv.Run(ctx, llm.Request{
		Model:    job.Model,
		System:   system,
		Messages: []llm.Message{llm.TextMessage("user", rc.Text)},
		Tools:    []llm.Tool{llm.CommentTool},
	})
	done(err)
	if err != nil {
		log.Error("llm call failed", "error", err)
		job.AddError(fmt.Sprintf("llm: %s", err))
		if w.reviewed != nil {
			w.reviewed.Forget(hash)
		}
		w.finish(job, "prompting")
		return
	}

	// Phase 4: the final answer becomes a page comment.
	job.SetStatus(StatusCommenting, "commenting")
	if answer := strings.TrimSpace(resp.Text()); answer != "" {
		if err := w.comment(ctx, writeback.Target{PageID: job.PageID}, answer, prompt.Title); err != nil {
			log.Error("final comment failed", "error", err)
			job.AddError(fmt.Sprintf("final comment: %s", err))
		} else {
			job.IncrCommentsPosted()
		}
	}

	snap := job.Snapshot()
	log.Info("review complete", "tool_calls", snap.Progress.ToolCalls, "comments", snap.Progress.CommentsPosted)
	w.finish(job, "commenting")
}

// finish sets the terminal status from what was posted and what failed.
func (w *Worker) finish(job *Job, failedPhase string) {
	snap := job.Snapshot()
	hadErrors := len(snap.Progress.Errors) > 0
	switch {
	case hadErrors && snap.Progress.CommentsPosted > 0:
		job.SetStatus(StatusPartial, "done")
	case hadErrors:
		job.SetStatus(StatusFailed, failedPhase)
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

// handleTool posts one notion_comment call. Comments on ids that are not
// blocks of the reviewed page go to the page itself.
func (w *Worker) handleTool(ctx context.Context, log *slog.Logger, job *Job, displayName string, blockIDs map[string]string, call llm.ContentBlock) (string, error) {
	if call.Name != llm.CommentToolName {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	args, err := llm.ParseCommentArgs(call.Input)
	if err != nil {
		log.Warn("invalid tool call", "error", err)
		return "", err
	}

	target := writeback.Target{PageID: job.PageID}
	if id, ok := blockIDs[assemble.NormalizeID(args.BlockID)]; ok {
		target.BlockID = id
	} else {
		log.Warn("block not on page, commenting on page", "block_id", args.BlockID)
	}

	if err := w.comment(ctx, target, args.CommentMarkdown, displayName); err != nil {
		log.Error("comment failed", "block_id", args.BlockID, "error", err)
		job.AddError(fmt.Sprintf("comment %s: %s", args.BlockID, err))
		return "", fmt.Errorf("posting comment failed: %w", err)
	}
	job.IncrCommentsPosted()
	if target.BlockID == "" {
		return fmt.Sprintf("Block %s is not part of the page; comment added to the page instead", args.BlockID), nil
	}
	return fmt.Sprintf("Comment added to block %s", target.BlockID), nil
}

func (w *Worker) comment(ctx context.Context, target writeback.Target, md, displayName string) error {
	done := w.opts.Timings.Start(latency.PhaseComment)
	_, err := w.comments.Comment(ctx, target, md, displayName)
	done(err)
	return err
}

// pageBlockIDs restores the block ids of the reviewed page from its
// rendered section, keyed by normalised id.
func pageBlockIDs(rc *assemble.RenderedContext) map[string]string {
	out := make(map[string]string)
	if len(rc.Sections) == 0 {
		return out
	}
	root := rc.Sections[0]
	ids := root.BlockIDs
	if doc, err := markdown.Parse(root.Text); err == nil {
		ids = block.IDs(doc.Blocks)
	}
	for _, id := range ids {
		if id != "" {
			out[assemble.NormalizeID(id)] = id
		}
	}
	return out
}
