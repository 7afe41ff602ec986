package provider

import (
	"fmt"
	"strings"
)

// 拦截原因。
const (
	BlockReasonConsent   = "consent"   // 跳转到 Cookie 同意页
	BlockReasonChallenge = "challenge" // 页面是反爬验证（JS challenge）
)

// HTTPStatusError 是 Fetcher.Fetch 在日历页/详情页返回非 2xx 时的错误。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string // 3xx 未被跟随时的跳转目标
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	if loc := strings.TrimSpace(e.Location); loc != "" {
		return fmt.Sprintf("HTTP %d → %s", e.StatusCode, loc)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// BlockedError 表示 Fetcher.Fetch 拿到的是同意页或验证页而不是 bluray-disc.de 的内容。
// 不尝试绕过：auto 模式下由 FetchTrace 换下一个 Fetcher，否则记为 fetch_failed。
type BlockedError struct {
	URL    string
	Reason string // BlockReasonConsent / BlockReasonChallenge
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if r := strings.TrimSpace(e.Reason); r != "" {
		return "blocked: " + r
	}
	return "blocked"
}

// Code 返回 report 中使用的尝试错误码，例如 "blocked_consent"。
func (e *BlockedError) Code() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked_" + strings.TrimSpace(e.Reason)
}
