package imagegen

import (
	"log/slog"

	"github.com/frontier-design/projectory-web-to-print/internal/cache"
	"github.com/frontier-design/projectory-web-to-print/internal/config"
)

// NewAugmenter builds the augmentation Service from config. Without an API
// key the Service is disabled and never calls out. c may be nil.
func NewAugmenter(cfg config.GeminiConfig, c cache.Cache) *Service {
	if cfg.APIKey == "" {
		slog.Warn("GEMINI_API_KEY not set; image augmentation disabled")
		return NewService(nil, c, cfg.ImageCacheTTL, cfg.ImageTimeout)
	}
	slog.Info("image augmentation enabled", "model", cfg.Model, "api_key_length", len(cfg.APIKey))
	gen := NewClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.ImageTimeout)
	return NewService(gen, c, cfg.ImageCacheTTL, cfg.ImageTimeout)
}
