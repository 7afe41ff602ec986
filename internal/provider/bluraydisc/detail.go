package bluraydisc

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/John-Robertt/BRCal/internal/domain"
)

var (
	productionRE = regexp.MustCompile(`(?i)Produktion(?:sjahr)?\s*:?\s*(\d{4})\b`)
	parenYearRE  = regexp.MustCompile(`\((\d{4})\)`)
)

// ParseDetail 把详情页 HTML 解析为 Item。
//
// 约束：
// - 纯函数：只依赖输入 html + pageURL
// - 缺失字段不是错误（保持零值）；只有 HTML 无法读取时才返回 error
// - Category 不在这里填写（由调用方按发现来源补上）
//
// 标题取文档顺序中第一个文字非空的 h1/h2：空的 h1（例如只包了 logo 图片）会被跳过，而不是直接得到空标题。
func ParseDetail(page []byte, pageURL string) (domain.Item, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return domain.Item{}, errors.New("pageURL 不能为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return domain.Item{}, err
	}

	it := domain.Item{URL: pageURL}

	// 文档顺序中第一个有文字的 h1/h2。
	doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		it.Title = normSpace(s.Text())
		return it.Title == ""
	})

	text := flattenText(doc)
	it.ProductionYear = productionYear(text)
	if m, ok := NormalizeDate(text); ok {
		it.ReleaseDate = m.Date
		it.DateRule = m.Rule
	}
	return it, nil
}

func productionYear(text string) int {
	if m := productionRE.FindStringSubmatch(text); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return y
		}
	}
	if m := parenYearRE.FindStringSubmatch(text); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return y
		}
	}
	return 0
}

// flattenText 把文档中所有可见文本节点去空白后用单个空格连接（跳过 script/style 等）。
func flattenText(doc *goquery.Document) string {
	parts := make([]string, 0, 256)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := normSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
