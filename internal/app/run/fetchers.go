package run

import (
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/infra/cache"
	"github.com/John-Robertt/BRCal/internal/infra/httpx"
	"github.com/John-Robertt/BRCal/internal/provider"
	"github.com/John-Robertt/BRCal/internal/provider/bluraydisc"
)

// NewRegistry 按配置构造 http + browser 两个 fetcher。
//
// 未关闭缓存时，详情页经 <dir>/cache/pages 缓存；日历页每次都重新抓取。
// 返回的 closeFn 用于结束浏览器进程（未启动时为 no-op）。
func NewRegistry(eff config.EffectiveConfig, fs afero.Fs, clock clockwork.Clock) (reg provider.Registry, closeFn func(), err error) {
	client, err := httpx.NewClient(eff.Fetch.ProxyURL)
	if err != nil {
		return provider.Registry{}, nil, &config.Error{Code: config.ErrCodeInvalid, Path: "fetch.proxy_url", Err: err}
	}

	browser := &provider.BrowserFetcher{ChromeBin: eff.Fetch.ChromeBin}
	fetchers := []provider.Fetcher{provider.HTTPFetcher{Client: client}, browser}
	if !eff.Fetch.NoCache {
		store := cache.New(fs, eff.Dir)
		for i, f := range fetchers {
			fetchers[i] = provider.CachingFetcher{
				Next:      f,
				Store:     store,
				TTL:       eff.Fetch.CacheTTL,
				Clock:     clock,
				Cacheable: bluraydisc.IsDetailURL,
			}
		}
	}

	reg, err = provider.NewRegistry(fetchers...)
	if err != nil {
		browser.Close()
		return provider.Registry{}, nil, err
	}
	return reg, browser.Close, nil
}
