package domain

import (
	"sort"
	"strings"
)

// Category 是 bluray-disc.de 的一个发行日历分类。
type Category struct {
	Slug  string
	Label string
	Rank  int
}

// Categories 是固定的分类表；Rank 即默认的去重优先级（越小越优先）。
var Categories = []Category{
	{Slug: "4k-uhd", Label: "4K UHD", Rank: 0},
	{Slug: "blu-ray-filme", Label: "Blu-ray Filme", Rank: 1},
	{Slug: "3d-blu-ray-filme", Label: "3D Blu-ray", Rank: 2},
	{Slug: "serien", Label: "Serien", Rank: 3},
	{Slug: "blu-ray-importe", Label: "Importe", Rank: 4},
}

// DefaultCategory 是未配置分类时使用的分类。
const DefaultCategory = "4k-uhd"

func LookupCategory(slug string) (Category, bool) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	for _, c := range Categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryLabel 返回分类的展示名；未知分类原样返回 slug。
func CategoryLabel(slug string) string {
	if c, ok := LookupCategory(slug); ok {
		return c.Label
	}
	return slug
}

func CategorySlugs() []string {
	out := make([]string, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, c.Slug)
	}
	return out
}

// Priorities 把分类 slug 映射到去重优先级。未出现在表中的分类视为“无排名”，排在最后。
type Priorities map[string]int

func DefaultPriorities() Priorities {
	p := make(Priorities, len(Categories))
	for _, c := range Categories {
		p[c.Slug] = c.Rank
	}
	return p
}

// PrioritiesFromOrder 按给定顺序生成优先级（第一个为 0）。重复的 slug 只取第一次出现。
func PrioritiesFromOrder(order []string) Priorities {
	p := make(Priorities, len(order))
	for _, s := range order {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := p[s]; ok {
			continue
		}
		p[s] = len(p)
	}
	return p
}

func (p Priorities) Rank(slug string) (int, bool) {
	r, ok := p[strings.ToLower(strings.TrimSpace(slug))]
	return r, ok
}

// Order 返回按优先级排序的 slug 列表（用于展示与持久化）。
func (p Priorities) Order() []string {
	out := make([]string, 0, len(p))
	for s := range p {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if p[out[i]] != p[out[j]] {
			return p[out[i]] < p[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
