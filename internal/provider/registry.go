package provider

import (
	"fmt"
	"strings"
)

// Registry 是 fetcher 的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Fetcher
}

func NewRegistry(fetchers ...Fetcher) (Registry, error) {
	byName := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		if f == nil {
			return Registry{}, fmt.Errorf("fetcher 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(f.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("fetcher.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 fetcher：%q", name)
		}
		byName[name] = f
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Fetcher, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	f, ok := r.byName[name]
	return f, ok
}
