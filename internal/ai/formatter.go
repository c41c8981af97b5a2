// Package ai provides the announcement formatter: it rewrites free-form event
// descriptions into a standardized formal announcement using an LLM backend.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/user/wa-announcer/internal/config"
	. "github.com/user/wa-announcer/internal/logging"
)

// Result is a formatted announcement.
type Result struct {
	Content   string `json:"content"`
	Provider  string `json:"provider"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Formatter formats raw announcement text. providerOverride selects a backend
// for this call only; empty uses the configured default. Failures are not
// retried here.
type Formatter interface {
	Format(ctx context.Context, rawText, providerOverride string) (*Result, error)
}

// Service is the default Formatter backed by OpenAI or Ollama.
type Service struct {
	cfg    config.AIConfig
	openai *openai.Client
	http   *http.Client
}

// NewService creates the formatter service from config. The OpenAI client is
// only constructed when an API key is present.
func NewService(cfg config.AIConfig) *Service {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}

	s := &Service{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
	if cfg.OpenAIAPIKey != "" {
		s.openai = openai.NewClient(cfg.OpenAIAPIKey)
	}

	L_debug("ai: formatter created", "provider", cfg.Provider)
	return s
}

// Format implements Formatter.
func (s *Service) Format(ctx context.Context, rawText, providerOverride string) (*Result, error) {
	provider := providerOverride
	if provider == "" {
		provider = s.cfg.Provider
	}

	start := time.Now()
	L_info("ai: formatting announcement", "provider", provider, "inputLen", len(rawText))

	prompt := announcementPrompt(rawText)

	var content string
	var err error
	switch provider {
	case "openai":
		content, err = s.formatWithOpenAI(ctx, prompt)
	case "ollama":
		content, err = s.formatWithOllama(ctx, prompt)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", provider)
	}
	if err != nil {
		L_error("ai: formatting failed", "provider", provider, "error", err)
		return nil, err
	}

	elapsed := time.Since(start)
	L_elapsed(start, "ai: formatting completed", "provider", provider)

	return &Result{
		Content:   strings.TrimSpace(content),
		Provider:  provider,
		ElapsedMs: elapsed.Milliseconds(),
	}, nil
}
