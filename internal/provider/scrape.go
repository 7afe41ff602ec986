package provider

import (
	"context"
	"fmt"
	"strings"
)

// 抓取模式（配置项 fetch.mode）。
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeAuto    = "auto"
)

// Attempt 记录一次 fetcher 尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Fetcher string // fetcher name（小写）
	Stage   string // "fetch" / "ok"
	Err     error  // nil when Stage=="ok"
}

// Fetch 按 mode 对应的顺序尝试抓取 pageURL，返回 HTML 与最终成功的 fetcher name。
func Fetch(ctx context.Context, reg Registry, mode string, pageURL string) (html []byte, used string, err error) {
	html, used, _, err = FetchTrace(ctx, reg, mode, pageURL)
	return html, used, err
}

// FetchTrace 与 Fetch 相同，但额外返回尝试链路（用于解释回退原因）。
//
// ctx 取消时立即返回，不再尝试后续 fetcher。
func FetchTrace(ctx context.Context, reg Registry, mode string, pageURL string) (html []byte, used string, attempts []Attempt, err error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return nil, "", nil, fmt.Errorf("fetch mode 不能为空")
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, "", nil, fmt.Errorf("url 不能为空")
	}

	order, err := FallbackOrder(mode)
	if err != nil {
		return nil, "", nil, err
	}

	var lastErr error
	for _, name := range order {
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", attempts, cerr
		}

		f, ok := reg.Get(name)
		if !ok {
			lastErr = fmt.Errorf("fetcher 未注册：%q", name)
			attempts = append(attempts, Attempt{Fetcher: name, Stage: "fetch", Err: lastErr})
			continue
		}

		b, ferr := f.Fetch(ctx, pageURL)
		if ferr != nil {
			lastErr = &Error{Fetcher: name, Stage: "fetch", URL: pageURL, Err: ferr}
			attempts = append(attempts, Attempt{Fetcher: name, Stage: "fetch", Err: ferr})
			continue
		}

		attempts = append(attempts, Attempt{Fetcher: name, Stage: "ok", Err: nil})
		return b, name, attempts, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("无可用 fetcher")
	}
	return nil, "", attempts, lastErr
}

// Error 是 fetch 阶段的可追溯错误。
// 上层可以据此把失败归类为 fetch_failed，并写入 report。
type Error struct {
	Fetcher string // fetcher name（小写）
	Stage   string
	URL     string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetcher=%s stage=%s url=%s: %v", e.Fetcher, e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FallbackOrder 返回 mode 对应的 fetcher 尝试顺序。
//
// - http：只走 HTTP
// - browser：先无头浏览器，失败回退 HTTP
// - auto：先 HTTP（便宜），被拦截/失败时再用浏览器
func FallbackOrder(mode string) ([]string, error) {
	switch mode {
	case ModeHTTP:
		return []string{ModeHTTP}, nil
	case ModeBrowser:
		return []string{ModeBrowser, ModeHTTP}, nil
	case ModeAuto:
		return []string{ModeHTTP, ModeBrowser}, nil
	default:
		return nil, fmt.Errorf("未知 fetch mode：%q", mode)
	}
}
