package domain

import "time"

// ListingPage 是一个发行日历页（分类 × 年 × 月 × 分页），由 planner 根据配置生成，不可变。
type ListingPage struct {
	URL      string
	Category string
	Year     int
	Month    time.Month
	Page     int // 从 1 开始
}
