package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/BRCal/internal/infra/httpx"
)

const defaultBrowserTimeout = 45 * time.Second

// BrowserFetcher 用无头 Chrome 渲染页面后取整页 HTML。
//
// 浏览器进程在首次 Fetch 时启动，之后复用；每次 Fetch 开一个新 tab。
// 用完必须 Close。
type BrowserFetcher struct {
	ChromeBin string        // 为空时由 chromedp 自行查找
	Wait      time.Duration // 页面 body 就绪后的额外等待
	Timeout   time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelBrows context.CancelFunc
}

func (*BrowserFetcher) Name() string { return ModeBrowser }

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, errors.New("url 不能为空")
	}
	browserCtx, err := f.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()
	// 调用方取消时同步关闭 tab。
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.Wait > 0 {
		actions = append(actions, chromedp.Sleep(f.Wait))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if strings.Contains(html, `id="challenge-form"`) {
		return nil, &BlockedError{URL: pageURL, Reason: BlockReasonChallenge}
	}
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("empty page")
	}
	return []byte(html), nil
}

func (f *BrowserFetcher) browser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browserCtx != nil {
		return f.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(httpx.RandomUserAgent()),
	)
	if bin := strings.TrimSpace(f.ChromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	// 先跑一个空 action，确保浏览器进程真正启动；失败时不缓存。
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}
	log.Debug().Str("chrome", f.ChromeBin).Msg("浏览器已启动")

	f.allocCtx, f.cancelAlloc = allocCtx, cancelAlloc
	f.browserCtx, f.cancelBrows = browserCtx, cancelBrowser
	return browserCtx, nil
}

// Close 结束浏览器进程；未启动时为 no-op。
func (f *BrowserFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelBrows != nil {
		f.cancelBrows()
	}
	if f.cancelAlloc != nil {
		f.cancelAlloc()
	}
	f.allocCtx, f.cancelAlloc = nil, nil
	f.browserCtx, f.cancelBrows = nil, nil
}
