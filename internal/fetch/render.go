package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/proxy"
	"go.uber.org/zap"
)

const (
	loadMoreCycles = 4
	loadMorePause  = 900 * time.Millisecond
)

// stealthScripts run before any page script to mask common automation tells.
var stealthScripts = []string{
	`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`,
	`window.chrome = { runtime: {} };`,
	`Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`,
	`Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});`,
}

// loadMoreScript clicks one visible "load more" control and scrolls down.
const loadMoreScript = `(() => {
  const labels = ["load more", "show more", "view more", "عرض المزيد", "مشاهدة المزيد"];
  let clicked = false;
  for (const el of document.querySelectorAll("button, a, [role='button']")) {
    const text = (el.innerText || "").trim().toLowerCase();
    if (text && el.offsetParent !== null && labels.some(l => text.includes(l))) {
      el.click();
      clicked = true;
      break;
    }
  }
  window.scrollBy(0, 1500);
  return clicked;
})()`

// RenderFetcher loads pages in headless Chrome. One browser process is
// started per proxy on first use and shared by every later fetch through that
// proxy; each fetch gets its own tab.
type RenderFetcher struct {
	proxies *proxy.Manager
	logger  *zap.Logger

	mu       sync.Mutex
	browsers map[string]*browser
}

type browser struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
}

func NewRenderFetcher(pm *proxy.Manager, logger *zap.Logger) *RenderFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderFetcher{proxies: pm, logger: logger, browsers: map[string]*browser{}}
}

// browserFor returns the running browser for proxyURL, starting it when needed.
func (r *RenderFetcher) browserFor(proxyURL string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.browsers[proxyURL]; ok {
		return b.ctx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	// Run with no actions launches the process and opens the first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.browsers[proxyURL] = &browser{ctx: browserCtx, cancelAlloc: cancelAlloc, cancel: cancel}
	r.logger.Info("browser started", zap.Bool("proxied", proxyURL != ""))
	return browserCtx, nil
}

// Browsers reports how many browser processes are running.
func (r *RenderFetcher) Browsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.browsers)
}

// Close shuts every browser down.
func (r *RenderFetcher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, b := range r.browsers {
		b.cancel()
		b.cancelAlloc()
		delete(r.browsers, key)
	}
}

func (r *RenderFetcher) Fetch(ctx context.Context, rawURL string, _ domain.SiteConfig) (Page, error) {
	browserCtx, err := r.browserFor(r.proxies.GetProxy())
	if err != nil {
		return Page{}, err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	err = chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(r.proxies.GetUserAgent()),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, src := range stealthScripts {
				if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return Page{StatusCode: int(status.Load())}, fmt.Errorf("render navigate: %w", err)
	}

	for i := 0; i < loadMoreCycles; i++ {
		var clicked bool
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(loadMoreScript, &clicked),
			chromedp.Sleep(loadMorePause),
		); err != nil {
			r.logger.Debug("load-more cycle stopped", zap.String("url", rawURL), zap.Int("cycle", i), zap.Error(err))
			break
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return Page{StatusCode: int(status.Load())}, fmt.Errorf("render capture: %w", err)
	}
	return Page{HTML: html, StatusCode: int(status.Load())}, nil
}
