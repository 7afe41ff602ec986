package provider

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/BRCal/internal/infra/cache"
)

// CachingFetcher 给 Next 加一层磁盘缓存。
//
// - Cacheable 为 nil 时所有页面都缓存；日历页会变化，调用方应只放行详情页
// - 缓存读写失败只记日志，不影响抓取结果
type CachingFetcher struct {
	Next      Fetcher
	Store     cache.Store
	TTL       time.Duration // <=0 表示不过期
	Clock     clockwork.Clock
	Cacheable func(pageURL string) bool
}

func (f CachingFetcher) Name() string { return f.Next.Name() }

func (f CachingFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.Cacheable != nil && !f.Cacheable(pageURL) {
		return f.Next.Fetch(ctx, pageURL)
	}

	clock := f.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b, ok, err := f.Store.ReadPage(pageURL, f.TTL, clock.Now())
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("读取页面缓存失败")
	}
	if ok {
		return b, nil
	}

	b, err = f.Next.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if werr := f.Store.WritePage(pageURL, b); werr != nil {
		log.Warn().Err(werr).Str("url", pageURL).Msg("写入页面缓存失败")
	}
	return b, nil
}
