// notionmd converts Notion pages to annotated Markdown and back from the
// command line.
//
//	notionmd render <page-id>
//	notionmd context <page-id> [--max-size N] [--unit bytes|runes|tokens]
//	notionmd parse [file]
//	notionmd apply <page-id> [file]
//
// parse and apply read standard input when no file is given.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/attachment"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/budget"
	"github.com/dgallion1/notionmd/internal/config"
	"github.com/dgallion1/notionmd/internal/fetch"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/dgallion1/notionmd/internal/retry"
	"github.com/dgallion1/notionmd/internal/writeback"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	verbose     bool
	envFile     string
	maxSize     int
	unit        string
	attachments bool
	noComments  bool
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("notionmd", pflag.ContinueOnError)
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.IntVar(&opts.maxSize, "max-size", -1, "context size limit (default CONTEXT_MAX_SIZE, 0 for none)")
	flagSet.StringVar(&opts.unit, "unit", "", "context size unit: bytes, runes or tokens (default CONTEXT_UNIT)")
	flagSet.BoolVar(&opts.attachments, "attachments", false, "expand file attachments into the context")
	flagSet.BoolVar(&opts.noComments, "no-comments", false, "do not fetch block comments")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: notionmd [flags] render|context|parse|apply ...")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		flagSet.Usage()
		return fmt.Errorf("missing command")
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not read env file", "path", opts.envFile, "error", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "parse" {
		return runParse(cmdArgs, stdin, stdout)
	}

	if err := cfg.ValidateNotion(); err != nil {
		return err
	}
	nc := notion.NewClient(cfg.NotionBaseURL, cfg.NotionToken, cfg.NotionVersion, cfg.NotionRatePerSec)
	defer nc.Close()
	policy := retry.Policy{Attempts: cfg.NotionMaxAttempts, Backoff: retry.Backoff}
	fetcher := fetch.New(nc, policy, cfg.FetchMaxDepth, cfg.FetchComments && !opts.noComments, log)

	switch cmd {
	case "render":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: notionmd render <page-id>")
		}
		doc, err := fetcher.Document(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		if n := len(markdown.UnsupportedBlocks(doc)); n > 0 {
			log.Warn("unsupported blocks rendered as text", "count", n)
		}
		_, err = fmt.Fprintln(stdout, markdown.Render(doc))
		return err

	case "context":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: notionmd context <page-id>")
		}
		unit := cfg.Unit()
		if opts.unit != "" {
			u, err := budget.ParseUnit(opts.unit)
			if err != nil {
				return err
			}
			unit = u
		}
		maxSize := cfg.ContextMaxSize
		if opts.maxSize >= 0 {
			maxSize = opts.maxSize
		}
		a := &assemble.Assembler{
			Docs:            fetcher,
			Unit:            unit,
			SkipUnreachable: cfg.ContextSkipUnreachable,
			Log:             log,
		}
		if opts.attachments || cfg.ExpandAttachments {
			a.Attachments = attachment.NewLoader(cfg.MaxAttachmentBytes, cfg.PDFFallbackPdftotext)
		}
		rc, err := a.Assemble(ctx, cmdArgs[0], maxSize)
		if err != nil {
			return err
		}
		log.Info("context assembled", "size", rc.Size, "unit", rc.Unit.String(), "documents", len(rc.Sections), "truncated", rc.Truncated)
		_, err = fmt.Fprintln(stdout, rc.Text)
		return err

	case "apply":
		if len(cmdArgs) < 1 || len(cmdArgs) > 2 {
			return fmt.Errorf("usage: notionmd apply <page-id> [file]")
		}
		doc, err := readDocument(cmdArgs[1:], stdin)
		if err != nil {
			return err
		}
		pageID := cmdArgs[0]
		if doc.ID != "" && assemble.NormalizeID(doc.ID) != assemble.NormalizeID(pageID) {
			return fmt.Errorf("document header names page %s, not %s", doc.ID, pageID)
		}
		w := &writeback.Writer{API: nc, Retry: policy, Log: log}
		res, err := w.Apply(ctx, pageID, doc.Blocks)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// runParse prints the block tree of annotated Markdown as indented lines.
func runParse(args []string, stdin io.Reader, stdout io.Writer) error {
	doc, err := readDocument(args, stdin)
	if err != nil {
		return err
	}
	if doc.ID != "" || doc.Title != "" {
		fmt.Fprintf(stdout, "page %s %q\n", doc.ID, doc.Title)
	}
	block.Walk(doc.Blocks, func(b *block.Block, depth int) bool {
		id := b.ID
		if id == "" {
			id = "(new)"
		}
		fmt.Fprintf(stdout, "%*s%s %s %q\n", depth*2, "", b.Type(), id, block.PlainText(block.RichText(b.Payload)))
		return true
	})
	return nil
}

func readDocument(args []string, stdin io.Reader) (*block.Document, error) {
	in := stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	return markdown.Parse(string(data))
}
