package bluraydisc

import (
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/BRCal/internal/domain"
)

// DateMatch 是日期规则链的命中结果。
type DateMatch struct {
	Date time.Time // UTC 零点
	Rule string    // domain.DateRule*
}

// Loose 表示结果来自最后兜底的启发式规则（可能误报）。
func (m DateMatch) Loose() bool { return m.Rule == domain.DateRuleLoose }

const monthAlt = `januar|februar|märz|maerz|april|mai|juni|juli|august|september|oktober|november|dezember`

var monthNum = map[string]string{
	"januar":    "01",
	"februar":   "02",
	"märz":      "03",
	"maerz":     "03",
	"april":     "04",
	"mai":       "05",
	"juni":      "06",
	"juli":      "07",
	"august":    "08",
	"september": "09",
	"oktober":   "10",
	"november":  "11",
	"dezember":  "12",
}

type dateRule struct {
	name string
	re   *regexp.Regexp
	// candidate 从一次匹配中取出待解析的日期串。
	candidate func(m []string) string
}

func firstGroup(m []string) string { return m[1] }

// dateRules 按优先级排列：显式的 "Ab <日期>" 优先于正文里任意出现的日期；数字/月份名之后才是宽松兜底。
var dateRules = []dateRule{
	{
		name:      domain.DateRuleAbNumeric,
		re:        regexp.MustCompile(`(?i)\bab\s+([0-3]?\d\s*\.\s*[01]?\d\s*\.\s*(?:\d{4}|\d{2}))\b`),
		candidate: firstGroup,
	},
	{
		name:      domain.DateRuleAbMonth,
		re:        regexp.MustCompile(`(?i)\bab\s+([0-3]?\d\.?\s*(?:` + monthAlt + `)\s*\d{4})\b`),
		candidate: firstGroup,
	},
	{
		name:      domain.DateRuleMonth,
		re:        regexp.MustCompile(`(?i)\b([0-3]?\d\.?\s*(?:` + monthAlt + `)\s*\d{4})\b`),
		candidate: firstGroup,
	},
	{
		name:      domain.DateRuleNumeric,
		re:        regexp.MustCompile(`\b([0-3]?\d\.[01]?\d\.(?:\d{4}|\d{2}))\b`),
		candidate: firstGroup,
	},
	{
		name: domain.DateRuleLoose,
		re:   regexp.MustCompile(`\b([0-3]?\d\.[01]?\d)\.?\D{0,30}?\b(\d{4})\b`),
		candidate: func(m []string) string {
			return m[1] + "." + m[2]
		},
	},
}

var (
	monthRE   = regexp.MustCompile(`(?i)` + monthAlt)
	nonDateRE = regexp.MustCompile(`[^0-9.\s]`)
	spaceRE   = regexp.MustCompile(`\s+`)
	dotsRE    = regexp.MustCompile(`\.{2,}`)
)

// NormalizeDate 在 text 中按规则链查找第一个能完整解析的发行日期。
//
// 每条规则的所有匹配都会依次尝试；匹配到但无法解析的候选（例如 31.02.2025）
// 不算错误，继续尝试下一个候选/下一条规则。全部失败时 ok=false。
func NormalizeDate(text string) (DateMatch, bool) {
	for _, r := range dateRules {
		for _, m := range r.re.FindAllStringSubmatch(text, -1) {
			d, ok := parseCandidate(r.candidate(m))
			if ok {
				return DateMatch{Date: d, Rule: r.name}, true
			}
		}
	}
	return DateMatch{}, false
}

// minYear 之前的年份视为无效候选（"01.01.0001" 会解析成零值 time.Time）。
const minYear = 1900

// parseCandidate 清洗候选串后按 D.M.YYYY、D.M.YY 依次解析。
func parseCandidate(s string) (time.Time, bool) {
	s = cleanCandidate(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2.1.2006", "2.1.06"} {
		t, err := time.Parse(layout, s)
		if err == nil && t.Year() >= minYear {
			return domain.Date(t.Year(), t.Month(), t.Day()), true
		}
	}
	return time.Time{}, false
}

func cleanCandidate(s string) string {
	s = monthRE.ReplaceAllStringFunc(s, func(name string) string {
		return "." + monthNum[strings.ToLower(name)] + "."
	})
	s = nonDateRE.ReplaceAllString(s, "")
	s = spaceRE.ReplaceAllString(s, "")
	s = dotsRE.ReplaceAllString(s, ".")
	return strings.Trim(s, ".")
}
