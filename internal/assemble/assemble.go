// Package assemble builds a size-bounded context by rendering a page and
// following its page references depth first.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/budget"
	"github.com/dgallion1/notionmd/internal/markdown"
)

// DocumentSource fetches a page with its title and block tree.
type DocumentSource interface {
	Document(ctx context.Context, id string) (*block.Document, error)
}

// AttachmentSource downloads and converts a file block.
type AttachmentSource interface {
	Load(ctx context.Context, f block.File) (*block.Document, error)
}

// RenderedContext is the assembled Markdown and its measured size.
type RenderedContext struct {
	Text      string
	Size      int
	Unit      budget.Unit
	Sections  []Section
	Truncated bool
}

// Section is the part of the context contributed by one document.
type Section struct {
	DocumentID string
	Title      string
	Text       string
	BlockIDs   []string
	Truncated  bool
}

// Assembler expands references found in rendered pages. It keeps no state
// between calls.
type Assembler struct {
	Docs            DocumentSource
	Attachments     AttachmentSource // Optional; nil leaves file blocks as links
	Unit            budget.Unit
	SkipUnreachable bool // log and skip referenced pages that fail to fetch
	Log             *slog.Logger
}

func (a *Assembler) logger() *slog.Logger {
	if a.Log == nil {
		return slog.Default()
	}
	return a.Log
}

type reference struct {
	id   string      // normalised page id
	file *block.File // set for attachments
	key  string      // visited-set key
}

func pageRef(id string) reference {
	return reference{id: id, key: id}
}

func fileRef(blockID string, f block.File) reference {
	key := "file:" + blockID
	if blockID == "" {
		key = "file:" + f.URL
	}
	return reference{id: blockID, file: &f, key: key}
}

// run holds the per-call state of one assembly.
type run struct {
	a       *Assembler
	max     int
	visited VisitedSet
	counter budget.Counter
	text    strings.Builder
	out     *RenderedContext
	full    bool
}

// Assemble renders rootID and appends every page it references, depth
// first in first-discovered order, until no unvisited references remain or
// the next block would push the size past maxSize. maxSize <= 0 means no
// limit. Hitting the limit is not an error; the result is marked Truncated.
func (a *Assembler) Assemble(ctx context.Context, rootID string, maxSize int) (*RenderedContext, error) {
	r := &run{
		a:       a,
		max:     maxSize,
		visited: NewVisitedSet(),
		counter: budget.Counter{Unit: a.Unit},
		out:     &RenderedContext{Unit: a.Unit},
	}

	r.visited.Add(NormalizeID(rootID))
	doc, err := a.Docs.Document(ctx, rootID)
	if err != nil {
		return nil, err
	}

	stack := [][]reference{r.include(doc)}
	for !r.full && len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		ref := top[0]
		stack[len(stack)-1] = top[1:]

		if !r.visited.Add(ref.key) {
			continue
		}
		doc, err := r.load(ctx, ref)
		if err != nil {
			if ref.file == nil && !a.SkipUnreachable {
				return nil, err
			}
			a.logger().Warn("skipping unreachable reference", "ref", ref.key, "error", err)
			continue
		}
		stack = append(stack, r.include(doc))
	}

	r.out.Text = r.text.String()
	r.out.Size = r.counter.Size()
	a.logger().Debug("context assembled",
		"root", rootID,
		"sections", len(r.out.Sections),
		"size", r.out.Size,
		"unit", a.Unit.String(),
		"truncated", r.out.Truncated,
	)
	return r.out, nil
}

func (r *run) load(ctx context.Context, ref reference) (*block.Document, error) {
	if ref.file == nil {
		return r.a.Docs.Document(ctx, ref.id)
	}
	doc, err := r.a.Attachments.Load(ctx, *ref.file)
	if err != nil {
		return nil, fmt.Errorf("attachment %s: %w", ref.file.Name, err)
	}
	doc.ID = ref.id
	doc.Title = attachmentLabel(*ref.file)
	return doc, nil
}

// attachmentLabel names a file by its display name and unsigned URL.
func attachmentLabel(f block.File) string {
	link := f.URL
	if u, err := url.Parse(f.URL); err == nil {
		u.RawQuery, u.Fragment = "", ""
		link = u.String()
	}
	if f.Name == "" {
		return link
	}
	return f.Name + " (" + link + ")"
}

// include appends doc block by block and returns the references carried by
// the appended blocks. It sets r.full when a block did not fit.
func (r *run) include(doc *block.Document) []reference {
	type unit struct {
		text    string
		blockID string
		b       *block.Block
	}
	var units []unit
	if h := markdown.RenderHeader(doc); h != "" {
		units = append(units, unit{text: h})
	}
	for _, seg := range markdown.Segments(doc) {
		units = append(units, unit{text: seg.Text, blockID: seg.BlockID, b: seg.Block})
	}

	sec := Section{DocumentID: doc.ID, Title: doc.Title}
	var parts []string
	var refs []reference
	for _, u := range units {
		piece := u.text
		if r.text.Len() > 0 {
			piece = "\n\n" + piece
		}
		if r.max > 0 && r.counter.With(piece) > r.max {
			sec.Truncated = true
			r.out.Truncated = true
			r.full = true
			break
		}
		r.counter.Add(piece)
		r.text.WriteString(piece)
		parts = append(parts, u.text)
		if u.blockID != "" {
			sec.BlockIDs = append(sec.BlockIDs, u.blockID)
		}

		for _, id := range BlockReferences(u.b) {
			refs = append(refs, pageRef(id))
		}
		if b := u.b; b != nil && r.a.Attachments != nil {
			if f, ok := b.Payload.(block.File); ok && f.Kind != "image" && f.URL != "" {
				refs = append(refs, fileRef(b.ID, f))
			}
		}
	}

	if len(parts) > 0 {
		sec.Text = strings.Join(parts, "\n\n")
		r.out.Sections = append(r.out.Sections, sec)
	}
	return refs
}
