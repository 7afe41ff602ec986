package domain

import (
	"strings"
	"time"
)

// 日期来源规则（按置信度从高到低）。
const (
	DateRuleAbNumeric = "ab-numerisch"
	DateRuleAbMonth   = "ab-monat"
	DateRuleMonth     = "monat"
	DateRuleNumeric   = "numerisch"
	// DateRuleLoose 是最后兜底的启发式规则，置信度最低，命中时上层必须告警。
	DateRuleLoose = "heuristik"
)

// Item 是一次运行中由单个详情页解析出的发行记录。
//
// 约束：
// - URL 在同一次运行内唯一（visited 集合保证）
// - 可选字段用零值表示缺失：Title=="" / ProductionYear==0 / ReleaseDate.IsZero()
// - Canonical/DuplicateOf 只由去重阶段写入
type Item struct {
	Title          string
	ProductionYear int
	ReleaseDate    time.Time // 日粒度，UTC 零点
	DateRule       string

	URL      string
	Category string // 分类 slug

	Canonical   bool
	DuplicateOf string
}

// DisplayTitle 返回用于展示的标题；未解析到标题时回退为 URL。
func (it Item) DisplayTitle() string {
	if t := strings.TrimSpace(it.Title); t != "" {
		return t
	}
	return it.URL
}

func (it Item) HasDate() bool { return !it.ReleaseDate.IsZero() }

// Date 构造日粒度的 UTC 日期。
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
