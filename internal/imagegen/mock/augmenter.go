package mock

import (
	"context"
	"sync/atomic"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// PixelPNG is a 1x1 PNG data URI used as a canned illustration.
const PixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// MockAugmenter satisfies models.ImageAugmenter for testing.
type MockAugmenter struct {
	EnabledFlag bool
	AugmentFunc func(ctx context.Context, text string) (string, error)

	calls atomic.Int64
}

func (m *MockAugmenter) Enabled() bool { return m.EnabledFlag }

func (m *MockAugmenter) Augment(ctx context.Context, text string) (string, error) {
	m.calls.Add(1)
	if m.AugmentFunc != nil {
		return m.AugmentFunc(ctx, text)
	}
	return "", nil
}

// Calls reports how many times Augment was invoked.
func (m *MockAugmenter) Calls() int64 { return m.calls.Load() }

// NewMockAugmenter returns an enabled augmenter that yields PixelPNG for any
// non-blank text.
func NewMockAugmenter() *MockAugmenter {
	return &MockAugmenter{
		EnabledFlag: true,
		AugmentFunc: func(_ context.Context, text string) (string, error) {
			if text == "" {
				return "", nil
			}
			return PixelPNG, nil
		},
	}
}

// NewDisabledAugmenter mirrors a server without an image API key.
func NewDisabledAugmenter() *MockAugmenter {
	return &MockAugmenter{EnabledFlag: false}
}

// NewFailingAugmenter returns an enabled augmenter that always fails with err.
func NewFailingAugmenter(err error) *MockAugmenter {
	return &MockAugmenter{
		EnabledFlag: true,
		AugmentFunc: func(_ context.Context, _ string) (string, error) {
			return "", err
		},
	}
}

// NewBlockingAugmenter returns an augmenter that blocks until ctx is done.
func NewBlockingAugmenter() *MockAugmenter {
	return &MockAugmenter{
		EnabledFlag: true,
		AugmentFunc: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", nil
		},
	}
}

// Compile-time check that MockAugmenter implements ImageAugmenter.
var _ models.ImageAugmenter = (*MockAugmenter)(nil)
