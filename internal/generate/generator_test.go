package generate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/finprep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	calls   int
	prompts []string
	reply   string
	err     error
}

func (f *fakeBackend) Complete(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testConfig() Config {
	return Config{
		Provider:        ProviderEcho,
		Model:           "fake",
		MaxOutputTokens: DefaultMaxOutputTokens,
		MaxInputTokens:  DefaultMaxInputTokens,
	}
}

func TestGenerate_StripsSpecialTokens(t *testing.T) {
	backend := &fakeBackend{reply: "<pad> Revenue grew 12% in FY2022.</s>\n"}
	svc, err := NewWithBackend(testConfig(), backend, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()

	out, err := svc.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12% in FY2022.", out)
}

func TestGenerate_TruncatesPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInputTokens = 2
	backend := &fakeBackend{reply: "ok"}
	svc, err := NewWithBackend(cfg, backend, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), strings.Repeat("a", 20))
	require.NoError(t, err)
	require.Len(t, backend.prompts, 1)
	assert.Equal(t, strings.Repeat("a", 8), backend.prompts[0])
}

func TestGenerate_BackendErrorIsNotRecoverable(t *testing.T) {
	backend := &fakeBackend{err: errors.New("503 service unavailable")}
	svc, err := NewWithBackend(testConfig(), backend, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackend)
	assert.False(t, types.Recoverable(err))
	assert.Contains(t, err.Error(), "503")
}

func TestGenerate_BackendErrorHidesRecoverableClass(t *testing.T) {
	backend := &fakeBackend{err: types.ErrInvalid}
	svc, err := NewWithBackend(testConfig(), backend, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "prompt")
	assert.False(t, types.Recoverable(err))
}

func TestGenerate_CacheHitSkipsBackend(t *testing.T) {
	cfg := testConfig()
	cfg.CachePath = filepath.Join(t.TempDir(), "cache", "generations.db")
	backend := &fakeBackend{reply: "expanded"}
	svc, err := NewWithBackend(cfg, backend, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	first, err := svc.Generate(ctx, "What was net income?")
	require.NoError(t, err)
	backend.reply = "different"
	second, err := svc.Generate(ctx, "What was net income?")
	require.NoError(t, err)

	assert.Equal(t, "expanded", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.calls)

	_, err = svc.Generate(ctx, "Another query")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestGenerate_CacheSurvivesReopen(t *testing.T) {
	cfg := testConfig()
	cfg.CachePath = filepath.Join(t.TempDir(), "generations.db")
	ctx := context.Background()

	svc, err := NewWithBackend(cfg, &fakeBackend{reply: "stored"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = svc.Generate(ctx, "q")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	backend := &fakeBackend{reply: "fresh"}
	svc, err = NewWithBackend(cfg, backend, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()
	out, err := svc.Generate(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "stored", out)
	assert.Zero(t, backend.calls)
}

func TestGenerate_CacheKeyedByEndpointAndSampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generations.db")
	ctx := context.Background()

	base := testConfig()
	base.CachePath = path
	base.BaseURL = "http://localhost:8000/v1"
	svc, err := NewWithBackend(base, &fakeBackend{reply: "from local"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = svc.Generate(ctx, "q")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	otherURL := base
	otherURL.BaseURL = "http://gpu-box:8000/v1"
	hotter := base
	hotter.Temperature = 0.7
	for name, cfg := range map[string]Config{"base url": otherURL, "temperature": hotter} {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{reply: "fresh"}
			svc, err := NewWithBackend(cfg, backend, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer svc.Close()
			out, err := svc.Generate(ctx, "q")
			require.NoError(t, err)
			assert.Equal(t, "fresh", out)
			assert.Equal(t, 1, backend.calls)
		})
	}

	backend := &fakeBackend{reply: "fresh"}
	svc, err = NewWithBackend(base, backend, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()
	out, err := svc.Generate(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "from local", out)
	assert.Zero(t, backend.calls)
}

func TestNew_Echo(t *testing.T) {
	cfg := testConfig()
	cfg.EchoText = "  fixed elaboration <|endoftext|>"
	svc, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Close()

	out, err := svc.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fixed elaboration", out)
}

func TestEcho_DefaultAndCancel(t *testing.T) {
	out, err := Echo{}.Complete(context.Background(), "p", 10)
	require.NoError(t, err)
	assert.Equal(t, defaultEchoText, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Echo{}.Complete(ctx, "p", 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"echo without model", func(c *Config) { c.Provider = ProviderEcho; c.Model = "" }, true},
		{"anthropic", func(c *Config) { c.Provider = ProviderAnthropic; c.Model = "claude-haiku" }, true},
		{"unknown provider", func(c *Config) { c.Provider = "t5" }, false},
		{"openai without model", func(c *Config) { c.Model = "" }, false},
		{"zero output", func(c *Config) { c.MaxOutputTokens = 0 }, false},
		{"negative input", func(c *Config) { c.MaxInputTokens = -1 }, false},
		{"temperature", func(c *Config) { c.Temperature = 3 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfigLabel(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o-mini", DefaultConfig().Label())
	assert.Equal(t, "echo", Config{Provider: ProviderEcho}.Label())
	assert.Equal(t, "echo", Config{Provider: ProviderEcho, Model: "gpt-4o-mini"}.Label())
}
