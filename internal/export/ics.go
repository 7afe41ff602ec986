package export

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/John-Robertt/BRCal/internal/domain"
)

const (
	ProductID    = "-//BlurayDisc Scraper//de//"
	CalendarName = "Blu-ray Releases (bluray-disc.de)"
	uidDomain    = "@bluray-disc.de"
)

// EventUID 返回条目在日历中的稳定 UID：sha1(url)@bluray-disc.de。
// 同一 URL 重复导出时 UID 不变，日历客户端会更新而不是新增。
func EventUID(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return hex.EncodeToString(sum[:]) + uidDomain
}

// EncodeICS 把条目转成 iCalendar 文本，返回写入的事件数。
//
// 规则：
// - 没有发行日期的条目跳过（日历事件必须有日期）
// - 全天事件：DTSTART=发行日，DTEND=次日
// - SUMMARY 为标题（缺失时回退 URL）；DESCRIPTION 含来源 URL、分类、制作年份
// - now 只用于 DTSTAMP
func EncodeICS(items []domain.Item, now time.Time) ([]byte, int, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(CalendarName)

	n := 0
	for _, it := range items {
		if !it.HasDate() {
			continue
		}
		if strings.TrimSpace(it.URL) == "" {
			return nil, 0, fmt.Errorf("条目缺少 URL：%q", it.Title)
		}
		d := it.ReleaseDate.UTC()
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

		ev := cal.AddEvent(EventUID(it.URL))
		ev.SetDtStampTime(now.UTC())
		ev.SetAllDayStartAt(day)
		ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ev.SetSummary(it.DisplayTitle())
		ev.SetDescription(description(it))
		ev.SetURL(it.URL)
		n++
	}
	return []byte(cal.Serialize()), n, nil
}

func description(it domain.Item) string {
	lines := []string{"Quelle: " + it.URL}
	if it.Category != "" {
		lines = append(lines, "Kategorie: "+domain.CategoryLabel(it.Category))
	}
	if it.ProductionYear > 0 {
		lines = append(lines, fmt.Sprintf("Produktion: %d", it.ProductionYear))
	}
	return strings.Join(lines, "\n")
}
