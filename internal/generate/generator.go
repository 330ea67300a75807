// Package generate adapts text generation backends to a single prompt in,
// text out call with input truncation, output cleanup and an optional memo.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/finprep/internal/hash"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderEcho      = "echo"

	DefaultMaxOutputTokens = 150
	DefaultMaxInputTokens  = 512
	DefaultTokenEncoding   = "cl100k_base"
)

// ErrBackend marks a failed generation call. It is never recoverable.
var ErrBackend = errors.New("generation backend failed")

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Backend performs one raw completion call.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type Config struct {
	Provider        string  `yaml:"provider" json:"provider"`
	Model           string  `yaml:"model" json:"model"`
	BaseURL         string  `yaml:"base_url" json:"base_url,omitempty"`
	APIKeyEnv       string  `yaml:"api_key_env" json:"api_key_env,omitempty"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxInputTokens  int     `yaml:"max_input_tokens" json:"max_input_tokens"`
	TokenEncoding   string  `yaml:"token_encoding" json:"token_encoding,omitempty"`
	CachePath       string  `yaml:"cache_path" json:"cache_path,omitempty"`
	EchoText        string  `yaml:"echo_text" json:"echo_text,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Provider:        ProviderOpenAI,
		Model:           "gpt-4o-mini",
		APIKeyEnv:       "OPENAI_API_KEY",
		MaxOutputTokens: DefaultMaxOutputTokens,
		MaxInputTokens:  DefaultMaxInputTokens,
		TokenEncoding:   DefaultTokenEncoding,
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderEcho:
	default:
		return fmt.Errorf("unsupported generator provider %q", c.Provider)
	}
	if c.Provider != ProviderEcho && strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("generator model is required for provider %s", c.Provider)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.MaxOutputTokens)
	}
	if c.MaxInputTokens <= 0 {
		return fmt.Errorf("max_input_tokens must be positive, got %d", c.MaxInputTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	return nil
}

// Label identifies the backend in reports, e.g. "openai/gpt-4o-mini".
func (c Config) Label() string {
	if c.Model == "" || c.Provider == ProviderEcho {
		return c.Provider
	}
	return c.Provider + "/" + c.Model
}

// Service is the Generator the pipeline shares. Build it once per process.
type Service struct {
	cfg       Config
	backend   Backend
	truncator *Truncator
	cache     *Cache
	log       *zap.Logger
}

// New builds the backend named by cfg.Provider.
func New(cfg Config, log *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var backend Backend
	switch cfg.Provider {
	case ProviderOpenAI:
		backend = newOpenAI(cfg, apiKey(cfg))
	case ProviderAnthropic:
		backend = newAnthropic(cfg, apiKey(cfg))
	case ProviderEcho:
		backend = Echo{Text: cfg.EchoText}
	}
	return NewWithBackend(cfg, backend, log)
}

// NewWithBackend wraps an existing backend with truncation, cleanup and,
// when cfg.CachePath is set, the SQLite memo.
func NewWithBackend(cfg Config, backend Backend, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		backend:   backend,
		truncator: NewTruncator(cfg.TokenEncoding, log),
		log:       log,
	}
	if cfg.CachePath != "" {
		c, err := OpenCache(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		n, err := c.Len(context.Background())
		if err != nil {
			c.Close()
			return nil, err
		}
		log.Debug("generation cache opened", zap.String("path", cfg.CachePath), zap.Int("entries", n))
		s.cache = c
	}
	return s, nil
}

func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = s.truncator.Truncate(prompt, s.cfg.MaxInputTokens)

	var key string
	if s.cache != nil {
		key = cacheKey(s.cfg, prompt)
		text, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			s.log.Debug("generation cache hit", zap.String("key", key))
			return text, nil
		}
	}

	raw, err := s.backend.Complete(ctx, prompt, s.cfg.MaxOutputTokens)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBackend, s.cfg.Label(), err)
	}
	text := StripSpecialTokens(raw)

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// cacheKey covers every setting that changes what the backend returns for a
// prompt.
func cacheKey(cfg Config, prompt string) string {
	return hash.Key(
		cfg.Provider,
		cfg.BaseURL,
		cfg.Model,
		strconv.FormatFloat(cfg.Temperature, 'g', -1, 64),
		strconv.Itoa(cfg.MaxOutputTokens),
		prompt,
	)
}

func apiKey(cfg Config) string {
	if cfg.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.APIKeyEnv)
}
