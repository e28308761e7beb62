package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/notionmd/internal/api"
	"github.com/dgallion1/notionmd/internal/assemble"
	"github.com/dgallion1/notionmd/internal/attachment"
	"github.com/dgallion1/notionmd/internal/config"
	"github.com/dgallion1/notionmd/internal/fetch"
	"github.com/dgallion1/notionmd/internal/latency"
	"github.com/dgallion1/notionmd/internal/llm"
	"github.com/dgallion1/notionmd/internal/notion"
	"github.com/dgallion1/notionmd/internal/pipeline"
	"github.com/dgallion1/notionmd/internal/retry"
	"github.com/dgallion1/notionmd/internal/writeback"
	"github.com/joho/godotenv"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not read .env", "error", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	nc := notion.NewClient(cfg.NotionBaseURL, cfg.NotionToken, cfg.NotionVersion, cfg.NotionRatePerSec)
	notionRetry := retry.Policy{Attempts: cfg.NotionMaxAttempts, Backoff: retry.Backoff}
	timings := latency.New(latency.DefaultSamples)
	claude := llm.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel, cfg.LLMMaxTokens, timings)

	fetcher := fetch.New(nc, notionRetry, cfg.FetchMaxDepth, cfg.FetchComments, log)
	assembler := &assemble.Assembler{
		Docs:            fetcher,
		Unit:            cfg.Unit(),
		SkipUnreachable: cfg.ContextSkipUnreachable,
		Log:             log,
	}
	if cfg.ExpandAttachments {
		assembler.Attachments = attachment.NewLoader(cfg.MaxAttachmentBytes, cfg.PDFFallbackPdftotext)
	}
	writer := &writeback.Writer{API: nc, Retry: notionRetry, Log: log}

	// Initialize pipeline.
	store := pipeline.NewJobStore(cfg.JobTTL)
	worker := pipeline.NewWorker(fetcher, assembler, claude, writer, store, log, pipeline.WorkerOptions{
		MaxContextSize: cfg.ContextMaxSize,
		MaxRounds:      cfg.LLMMaxRounds,
		Retry:          retry.Default(),
		Timings:        timings,
	})
	orch := pipeline.NewOrchestrator(pipeline.Options{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, store, worker, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Jobs:      orch,
		Docs:      fetcher,
		Assembler: assembler,
		Writer:    writer,
		Timings:   timings,
		Model:     claude.Model(),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
		nc.Close()
	}()

	log.Info("starting notionmd", "port", cfg.Port, "workers", cfg.WorkerCount, "context_unit", cfg.Unit().String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
