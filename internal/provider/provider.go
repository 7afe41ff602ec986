package provider

import "context"

// Fetcher 把“如何拿到页面 HTML”限制在 provider 包内部；核心流程只依赖统一接口。
//
// 约束：
// - Fetch 不做解析，不做限速（限速由 run 层统一控制）
// - 失败返回 *HTTPStatusError / *BlockedError / 传输层错误，上层一律视为 fetch_failed
// - 实现必须并发安全：server 可能同时执行多个 run
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}
