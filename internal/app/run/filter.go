package run

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
)

// Dropped 是被过滤掉的条目及原因。
type Dropped struct {
	Item   domain.Item
	Reason string
}

// Filter 按制作年份、发行年份、月份过滤条目，保持输入顺序。
//
// - 制作年份：ignore_production=false 时生效；未解析到制作年份的条目保留
// - 发行年份：release_years 非空时只保留有日期且年份命中的条目
// - 月份：months 非空时丢弃月份不命中的有日期条目（无日期条目保留）
func Filter(eff config.EffectiveConfig, items []domain.Item) (kept []domain.Item, dropped []Dropped) {
	prodYears := eff.ProductionYearSet()
	kept = make([]domain.Item, 0, len(items))
	for _, it := range items {
		if reason := filterReason(eff, prodYears, it); reason != "" {
			dropped = append(dropped, Dropped{Item: it, Reason: reason})
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

func filterReason(eff config.EffectiveConfig, prodYears []int, it domain.Item) string {
	if !eff.IgnoreProduction && it.ProductionYear > 0 && !slices.Contains(prodYears, it.ProductionYear) {
		return fmt.Sprintf("制作年份 %d 不在 %s 中", it.ProductionYear, intSet(prodYears))
	}
	if len(eff.ReleaseYears) > 0 {
		if !it.HasDate() {
			return "没有发行日期，无法按发行年份过滤"
		}
		if !slices.Contains(eff.ReleaseYears, it.ReleaseDate.Year()) {
			return fmt.Sprintf("发行年份 %d 不在 %s 中", it.ReleaseDate.Year(), intSet(eff.ReleaseYears))
		}
	}
	if len(eff.Months) > 0 && it.HasDate() && !slices.Contains(eff.Months, int(it.ReleaseDate.Month())) {
		return fmt.Sprintf("发行月份 %d 不在 %s 中", int(it.ReleaseDate.Month()), intSet(eff.Months))
	}
	return ""
}

// SortItems 按发行日期升序排序（无日期最后），其次标题、URL。
func SortItems(items []domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.HasDate() != b.HasDate() {
			return a.HasDate()
		}
		if !a.ReleaseDate.Equal(b.ReleaseDate) {
			return a.ReleaseDate.Before(b.ReleaseDate)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.URL < b.URL
	})
}

func intSet(v []int) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, fmt.Sprint(n))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
