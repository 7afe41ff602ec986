package title

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	lower = cases.Lower(language.German)

	umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

	// 排版用的单引号统一为 ASCII，"Collector’s" 与 "Collector's" 同键。
	quotes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

	bracketRE = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

	// 版本/介质噪音词。长的写在前面：RE2 的分支是最左优先，"blu-ray" 必须先于 "blu" 类前缀尝试。
	noiseRE = regexp.MustCompile(`\b(?:ultra[\s-]?hd|blu-ray|blu ray|bluray|collector(?:'?s)?|limited|edition|steelbook|mediabook|exclusive|special|deluxe|uhd|4k|3d|dvd)\b`)

	sepRE = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// Key 生成用于去重分组的标题键（只用于比较，不对用户展示）。
//
// 规则：
// - 排版引号转 ASCII，德语小写；ä/ö/ü/ß 转为 ae/oe/ue/ss，其余变音符号直接去掉
// - 去掉圆括号/方括号内的整段内容
// - 按词边界去掉版本与介质噪音词（limited、steelbook、4k、blu-ray ...）
// - 其余分隔符折叠为单个空格
//
// s 为空时调用方应传入 URL；若清洗后为空，回退为小写的原始输入，保证不同输入不会因“全是噪音”而撞键。
func Key(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}

	k := umlauts.Replace(lower.String(quotes.Replace(raw)))
	k = stripMarks(k)
	k = bracketRE.ReplaceAllString(k, " ")
	k = noiseRE.ReplaceAllString(k, " ")
	k = strings.TrimSpace(sepRE.ReplaceAllString(k, " "))
	if k == "" {
		return strings.ToLower(raw)
	}
	return k
}

// KeyOrURL 是去重阶段的分组函数：标题为空时用 URL 做输入。
func KeyOrURL(title, url string) string {
	if strings.TrimSpace(title) == "" {
		return Key(url)
	}
	return Key(title)
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
