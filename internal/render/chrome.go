package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Page geometry in inches, matching the stylesheet's @page rule.
const (
	PaperWidthIn  = 16.5
	PaperHeightIn = 5.0
)

// settleDelay gives layout a moment after fonts report ready.
const settleDelay = 500 * time.Millisecond

// fitScript sizes the document to its content so no blank trailing page is
// printed.
const fitScript = `(() => {
  const c = document.getElementById("print-container");
  if (!c) return false;
  const h = c.scrollHeight + "px";
  document.body.style.height = h;
  document.body.style.overflow = "hidden";
  document.documentElement.style.height = h;
  document.documentElement.style.overflow = "hidden";
  return true;
})()`

// Engine starts rendering browsers.
type Engine interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser renders HTML documents to PDF. A Browser is shared by all batches
// of one job; Render calls must not overlap.
type Browser interface {
	Render(ctx context.Context, html string) ([]byte, error)
	Close() error
}

// ChromeEngine launches headless Chrome through the DevTools protocol.
type ChromeEngine struct {
	execPath    string
	pageTimeout time.Duration
}

// NewChromeEngine creates a ChromeEngine. An empty execPath lets chromedp
// find a Chrome binary. pageTimeout bounds each Render call.
func NewChromeEngine(execPath string, pageTimeout time.Duration) *ChromeEngine {
	return &ChromeEngine{execPath: execPath, pageTimeout: pageTimeout}
}

func (e *ChromeEngine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if e.execPath != "" {
		opts = append(opts, chromedp.ExecPath(e.execPath))
	}
	return opts
}

// Launch starts a browser process. The browser outlives ctx; it is stopped
// only by Close.
func (e *ChromeEngine) Launch(ctx context.Context) (Browser, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), e.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
	case <-ctx.Done():
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("launching chrome: %w", ctx.Err())
	}

	return &chromeBrowser{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		pageTimeout:   e.pageTimeout,
	}, nil
}

type chromeBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	pageTimeout   time.Duration
}

// Render loads html into a fresh tab and prints it. The tab is closed on
// every path.
func (b *chromeBrowser) Render(ctx context.Context, html string) ([]byte, error) {
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	defer closeTab()

	runCtx, cancel := context.WithTimeout(tabCtx, b.pageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		fontsReady bool
		fitted     bool
		pdf        []byte
	)
	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("getting frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &fontsReady, awaitPromise),
		chromedp.Sleep(settleDelay),
		chromedp.Evaluate(fitScript, &fitted),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPaperWidth(PaperWidthIn).
				WithPaperHeight(PaperHeightIn).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPrintBackground(true).
				WithPreferCSSPageSize(false).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("printing pdf: %w", err)
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("render timed out after %s: %w", b.pageTimeout, err)
		}
		return nil, err
	}
	if !fitted {
		slog.Warn("print container missing, page height not fitted")
	}
	return pdf, nil
}

// Close stops the browser process.
func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAlloc()
	return err
}

func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Compile-time checks.
var (
	_ Engine  = (*ChromeEngine)(nil)
	_ Browser = (*chromeBrowser)(nil)
)
