package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/provider/bluraydisc"
)

// Pages 把配置展开为需要抓取的日历页（只含第 1 页；翻页由 run 层按需追加）。
//
// 顺序固定：年份 → 分类 → 月份（都按配置中的顺序）。
// months 为空表示全年 1..12。
func Pages(eff config.EffectiveConfig) ([]domain.ListingPage, error) {
	months := eff.Months
	if len(months) == 0 {
		months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}

	out := make([]domain.ListingPage, 0, len(eff.CalendarYears)*len(eff.Categories)*len(months))
	for _, y := range eff.CalendarYears {
		for _, cat := range eff.Categories {
			for _, m := range months {
				lp, err := Page(eff, cat, y, time.Month(m), 1)
				if err != nil {
					return nil, err
				}
				out = append(out, lp)
			}
		}
	}
	return out, nil
}

// Page 构造单个日历页（page 从 1 开始）。
func Page(eff config.EffectiveConfig, category string, year int, month time.Month, page int) (domain.ListingPage, error) {
	u, err := bluraydisc.ListingURL(eff.Fetch.BaseURL, category, year, month, page)
	if err != nil {
		return domain.ListingPage{}, fmt.Errorf("构造日历页 URL 失败：%w", err)
	}
	return domain.ListingPage{URL: u, Category: category, Year: year, Month: month, Page: page}, nil
}

// OutputName 渲染输出文件名模板，保证以 .ics 结尾。
//
// 占位符：
// - {year}：日历年份，多个用 "-" 连接
// - {months}：月份，多个用 "-" 连接；未指定为 "all"
// - {release_years}：发行年份，多个用 "-" 连接；未指定为 "ALL"
// - {category} / {slug}：分类 slug，多个用 "-" 连接
//
// 模板里没有分类占位符时，追加 _<分类>；没有 {release_years} 但配置了发行年份时，追加 _<发行年份>。
func OutputName(eff config.EffectiveConfig) string {
	tpl := strings.TrimSpace(eff.OutputPattern)
	if tpl == "" {
		tpl = config.DefaultOutputPattern
	}

	years := joinInts(eff.CalendarYears, "-")
	months := "all"
	if len(eff.Months) > 0 {
		months = joinInts(sortedInts(eff.Months), "-")
	}
	release := "ALL"
	if len(eff.ReleaseYears) > 0 {
		release = joinInts(eff.ReleaseYears, "-")
	}
	cats := strings.Join(eff.Categories, "-")

	name := strings.NewReplacer(
		"{year}", years,
		"{months}", months,
		"{release_years}", release,
		"{category}", cats,
		"{slug}", cats,
	).Replace(tpl)
	name = strings.TrimSuffix(name, ".ics")

	var extra []string
	if !strings.Contains(tpl, "{category}") && !strings.Contains(tpl, "{slug}") && cats != "" {
		extra = append(extra, cats)
	}
	if !strings.Contains(tpl, "{release_years}") && len(eff.ReleaseYears) > 0 {
		extra = append(extra, release)
	}
	if len(extra) > 0 {
		name += "_" + strings.Join(extra, "_")
	}
	return name + ".ics"
}

// BaseName 去掉 .ics 后缀（用于派生 .csv / .report.json 文件名）。
func BaseName(icsName string) string {
	return strings.TrimSuffix(icsName, ".ics")
}

func joinInts(v []int, sep string) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, sep)
}

func sortedInts(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}
