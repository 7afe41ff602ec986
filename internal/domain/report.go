package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusExported  = "exported"
	StatusDuplicate = "duplicate"
	StatusFiltered  = "filtered"
	StatusUndated   = "undated"
	StatusFailed    = "failed"
)

const (
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeExportFailed  = "export_failed"
	ErrCodeConfigInvalid = "config_invalid"
	ErrCodeAborted       = "aborted"
)

// RunReport 是对外稳定输出（<base>.report.json / stdout JSON / API）的结构。
type RunReport struct {
	RunID   string `json:"run_id"`
	Aborted bool   `json:"aborted"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Output string `json:"output"` // ICS 文件名（相对 out/）

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Pages      int `json:"pages"`
	Links      int `json:"links"`
	Found      int `json:"found"`
	Exported   int `json:"exported"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
	Undated    int `json:"undated"`
	Failed     int `json:"failed"`
}

type ItemResult struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	ReleaseDate    string `json:"release_date"` // YYYY-MM-DD；缺失为空串
	ProductionYear int    `json:"production_year,omitempty"`
	DateRule       string `json:"date_rule,omitempty"`

	Status      string `json:"status"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Note        string `json:"note,omitempty"` // 过滤原因等
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorMsg    string `json:"error_msg,omitempty"`

	Attempts []FetchAttempt `json:"attempts,omitempty"`
}

// FetchAttempt 记录一次 fetcher 尝试（用于解释回退原因）。
type FetchAttempt struct {
	Fetcher   string `json:"fetcher"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// ResultFromItem 把解析结果转成 report 条目（状态由调用方决定）。
func ResultFromItem(it Item, status string) ItemResult {
	r := ItemResult{
		URL:            it.URL,
		Title:          it.DisplayTitle(),
		Category:       it.Category,
		ProductionYear: it.ProductionYear,
		DateRule:       it.DateRule,
		Status:         status,
		DuplicateOf:    it.DuplicateOf,
	}
	if it.HasDate() {
		r.ReleaseDate = it.ReleaseDate.Format("2006-01-02")
	}
	return r
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：有日期的按日期升序，其次无日期，失败条目排最后；同组内按标题、URL
// 3) summary 由 items 计算得出（Pages/Links 由运行过程填写，这里保留）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		ga, gb := sortGroup(a), sortGroup(b)
		if ga != gb {
			return ga < gb
		}
		if a.ReleaseDate != b.ReleaseDate {
			return a.ReleaseDate < b.ReleaseDate
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.URL < b.URL
	})

	s := ReportSummary{Pages: r.Summary.Pages, Links: r.Summary.Links}
	for _, it := range r.Items {
		switch it.Status {
		case StatusExported:
			s.Exported++
		case StatusDuplicate:
			s.Duplicates++
		case StatusFiltered:
			s.Filtered++
		case StatusUndated:
			s.Undated++
		case StatusFailed:
			s.Failed++
			continue
		}
		s.Found++
	}
	r.Summary = s
}

func sortGroup(it ItemResult) int {
	switch {
	case it.Status == StatusFailed:
		return 2
	case it.ReleaseDate == "":
		return 1
	default:
		return 0
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性：nil items 输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
