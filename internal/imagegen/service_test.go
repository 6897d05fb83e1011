package imagegen_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frontier-design/projectory-web-to-print/internal/cache"
	"github.com/frontier-design/projectory-web-to-print/internal/imagegen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stubs ---

type stubGenerator struct {
	calls atomic.Int64
	fn    func(ctx context.Context, prompt string) (string, error)
}

func (g *stubGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	return g.fn(ctx, prompt)
}

func (g *stubGenerator) Model() string { return "stub-model" }

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}
func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}
func (c *memCache) Delete(_ context.Context, key string) error { return nil }
func (c *memCache) Ping(_ context.Context) error               { return nil }
func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

var (
	_ imagegen.Generator = (*stubGenerator)(nil)
	_ cache.Cache        = (*memCache)(nil)
)

// --- Augment ---

func TestAugment_Disabled(t *testing.T) {
	svc := imagegen.NewService(nil, nil, 0, time.Second)

	img, err := svc.Augment(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Empty(t, img)
	assert.False(t, svc.Enabled())
}

func TestAugment_BlankTextSkipsRemoteCall(t *testing.T) {
	gen := &stubGenerator{fn: func(context.Context, string) (string, error) { return "data:x", nil }}
	svc := imagegen.NewService(gen, nil, 0, time.Second)

	for _, text := range []string{"", "   ", "\n\t"} {
		img, err := svc.Augment(context.Background(), text)
		require.NoError(t, err)
		assert.Empty(t, img)
	}
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestAugment_Success(t *testing.T) {
	var gotPrompt string
	gen := &stubGenerator{fn: func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "data:image/png;base64,QUJD", nil
	}}
	svc := imagegen.NewService(gen, nil, 0, time.Second)

	img, err := svc.Augment(context.Background(), "a lamp that could talk")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", img)
	assert.Contains(t, gotPrompt, "a lamp that could talk, shown clearly and centered.")
	assert.Contains(t, gotPrompt, "STYLE LOCK")
}

func TestAugment_UpstreamFailureResolvesEmpty(t *testing.T) {
	errs := []error{
		&imagegen.APIError{StatusCode: 429, Message: "quota"},
		&imagegen.APIError{StatusCode: 401},
		&imagegen.APIError{StatusCode: 400},
		&imagegen.APIError{StatusCode: 403},
		&imagegen.APIError{StatusCode: 503},
		imagegen.ErrNoImageData,
		errors.New("something odd"),
	}
	for _, e := range errs {
		gen := &stubGenerator{fn: func(context.Context, string) (string, error) { return "", e }}
		svc := imagegen.NewService(gen, nil, 0, time.Second)

		img, err := svc.Augment(context.Background(), "x")
		assert.NoError(t, err, e.Error())
		assert.Empty(t, img)
	}
}

func TestAugment_TimeoutResolvesEmpty(t *testing.T) {
	gen := &stubGenerator{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	svc := imagegen.NewService(gen, nil, 0, 30*time.Millisecond)

	start := time.Now()
	img, err := svc.Augment(context.Background(), "slow subject")

	require.NoError(t, err)
	assert.Empty(t, img)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAugment_CachesResults(t *testing.T) {
	gen := &stubGenerator{fn: func(context.Context, string) (string, error) { return "data:image/png;base64,QUJD", nil }}
	c := newMemCache()
	svc := imagegen.NewService(gen, c, time.Hour, time.Second)

	first, err := svc.Augment(context.Background(), "a cat")
	require.NoError(t, err)
	second, err := svc.Augment(context.Background(), "a cat")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestAugment_FailuresNotCached(t *testing.T) {
	gen := &stubGenerator{fn: func(context.Context, string) (string, error) { return "", imagegen.ErrNoImageData }}
	c := newMemCache()
	svc := imagegen.NewService(gen, c, time.Hour, time.Second)

	_, _ = svc.Augment(context.Background(), "a cat")
	_, _ = svc.Augment(context.Background(), "a cat")

	assert.Equal(t, int64(2), gen.calls.Load())
	assert.Empty(t, c.data)
}

func TestAugment_ZeroTTLSkipsCache(t *testing.T) {
	gen := &stubGenerator{fn: func(context.Context, string) (string, error) { return "data:x", nil }}
	c := newMemCache()
	svc := imagegen.NewService(gen, c, 0, time.Second)

	_, _ = svc.Augment(context.Background(), "a cat")
	_, _ = svc.Augment(context.Background(), "a cat")

	assert.Equal(t, int64(2), gen.calls.Load())
}
