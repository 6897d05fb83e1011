package imagegen

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/frontier-design/projectory-web-to-print/internal/cache"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// Generator produces an image data URI for a fully built prompt.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Service is the pipeline's ImageAugmenter. It never surfaces ordinary
// upstream failures: they are logged and resolve to no image.
type Service struct {
	gen      Generator
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	options  PromptOptions
}

// NewService creates a Service. A nil gen disables augmentation; a nil cache
// or zero cacheTTL disables result caching.
func NewService(gen Generator, c cache.Cache, cacheTTL, timeout time.Duration) *Service {
	return &Service{
		gen:      gen,
		cache:    c,
		cacheTTL: cacheTTL,
		timeout:  timeout,
		options:  DefaultPromptOptions,
	}
}

func (s *Service) Enabled() bool { return s.gen != nil }

// Augment returns a data URI for text, or "" when augmentation is disabled,
// text is blank, or generation failed.
func (s *Service) Augment(ctx context.Context, text string) (string, error) {
	if !s.Enabled() {
		slog.Debug("image augmentation disabled, skipping")
		return "", nil
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("empty prompt, skipping image generation")
		return "", nil
	}

	prompt := BuildMarkerCartoonPrompt(text, s.options)
	key := cache.ImageKey(s.gen.Model(), prompt)

	if img, ok := s.cached(ctx, key); ok {
		return img, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slog.Info("generating image", "prompt", truncateString(prompt, 80))
	img, err := s.gen.GenerateImage(genCtx, prompt)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			err = errors.Join(ErrTimeout, err)
		}
		logFailure(err, s.timeout)
		return "", nil
	}

	s.store(ctx, key, img)
	return img, nil
}

func (s *Service) cached(ctx context.Context, key string) (string, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return "", false
	}
	val, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("image cache lookup failed", "error", err)
		return "", false
	}
	if !found {
		return "", false
	}
	return string(val), true
}

func (s *Service) store(ctx context.Context, key, img string) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, []byte(img), s.cacheTTL); err != nil {
		slog.Warn("image cache write failed", "error", err)
	}
}

// logFailure reports a generation failure by category.
func logFailure(err error, timeout time.Duration) {
	var apiErr *APIError
	detail := ""
	if errors.As(err, &apiErr) {
		detail = truncateString(apiErr.Message, 200)
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		slog.Warn("image api quota exceeded", "detail", detail)
	case errors.Is(err, ErrUnauthorized):
		slog.Error("image api authentication failed; check GEMINI_API_KEY", "detail", detail)
	case errors.Is(err, ErrBadRequest):
		slog.Error("image api rejected prompt or parameters", "detail", detail)
	case errors.Is(err, ErrForbidden):
		slog.Error("image api key lacks required permissions", "detail", detail)
	case errors.Is(err, ErrUpstreamUnavailable):
		slog.Error("image api temporarily unavailable", "error", err)
	case errors.Is(err, ErrTimeout):
		slog.Warn("image generation timed out", "timeout", timeout.String())
	default:
		slog.Error("image generation failed", "error", err, "detail", detail)
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Compile-time check that Service implements ImageAugmenter.
var _ models.ImageAugmenter = (*Service)(nil)
