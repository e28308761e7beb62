package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/notionmd/internal/budget"
)

type Config struct {
	Port string

	// Auth for the webhook and API routes. Empty disables the check.
	ClientToken string

	// Notion connection
	NotionToken       string
	NotionBaseURL     string
	NotionVersion     string
	NotionRatePerSec  float64
	NotionMaxAttempts int

	// Fetching
	FetchMaxDepth int
	FetchComments bool

	// Claude
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	LLMMaxTokens     int
	LLMMaxRounds     int

	// Context assembly
	ContextMaxSize         int
	ContextUnit            string
	ContextSkipUnreachable bool

	// Attachments
	ExpandAttachments    bool
	MaxAttachmentBytes   int64
	PDFFallbackPdftotext bool

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		ClientToken: os.Getenv("NOTIONMD_CLIENT_TOKEN"),

		NotionToken:       os.Getenv("NOTION_TOKEN"),
		NotionBaseURL:     envOr("NOTION_BASE_URL", "https://api.notion.com"),
		NotionVersion:     envOr("NOTION_VERSION", "2022-06-28"),
		NotionRatePerSec:  envFloat("NOTION_RATE_PER_SEC", 3),
		NotionMaxAttempts: envInt("NOTION_MAX_ATTEMPTS", 3),

		FetchMaxDepth: envInt("FETCH_MAX_DEPTH", 0),
		FetchComments: envBool("FETCH_COMMENTS", true),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		AnthropicBaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		LLMMaxTokens:     envInt("LLM_MAX_TOKENS", 4096),
		LLMMaxRounds:     envInt("LLM_MAX_ROUNDS", 5),

		ContextMaxSize:         envInt("CONTEXT_MAX_SIZE", 400000),
		ContextUnit:            envOr("CONTEXT_UNIT", "bytes"),
		ContextSkipUnreachable: envBool("CONTEXT_SKIP_UNREACHABLE", false),

		ExpandAttachments:    envBool("EXPAND_ATTACHMENTS", false),
		MaxAttachmentBytes:   envInt64("MAX_ATTACHMENT_BYTES", 10485760), // 10MB
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.NotionRatePerSec < 0 {
		cfg.NotionRatePerSec = 3
	}
	if cfg.NotionMaxAttempts <= 0 {
		cfg.NotionMaxAttempts = 3
	}
	if cfg.FetchMaxDepth < 0 {
		cfg.FetchMaxDepth = 0
	}
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 4096
	}
	if cfg.LLMMaxRounds <= 0 {
		cfg.LLMMaxRounds = 5
	}
	if cfg.ContextMaxSize < 0 {
		cfg.ContextMaxSize = 0
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 10485760
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// Unit returns the parsed context size unit.
func (c Config) Unit() budget.Unit {
	u, err := budget.ParseUnit(c.ContextUnit)
	if err != nil {
		return budget.Bytes
	}
	return u
}

// ValidateNotion checks what every Notion-facing command needs.
func (c Config) ValidateNotion() error {
	if c.NotionToken == "" {
		return fmt.Errorf("NOTION_TOKEN is required")
	}
	if _, err := budget.ParseUnit(c.ContextUnit); err != nil {
		return fmt.Errorf("CONTEXT_UNIT: %w", err)
	}
	return nil
}

// Validate checks the settings the review service needs.
func (c Config) Validate() error {
	if err := c.ValidateNotion(); err != nil {
		return err
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
