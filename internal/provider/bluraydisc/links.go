package bluraydisc

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 详情页的两种路径形态：/blu-ray-filme/<id>... 与 /blu-ray-news/filme/<id>...
var detailPathRE = regexp.MustCompile(`^/(?:blu-ray-filme|blu-ray-news/filme)/\d+`)

// ExtractLinks 从日历页 HTML 中提取所有详情页的绝对 URL。
//
// 规则：
// - href 相对 baseURL 解析为绝对 URL，并去掉 query 与 fragment
// - 只接受与 baseURL 同站（忽略 www. 前缀）且路径符合详情页形态的链接；host 统一为 baseURL 的 host
// - 输出去重并按字典序排序；没有匹配不是错误（返回空切片）
func ExtractLinks(html []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("baseURL 无效：%w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("baseURL 必须是绝对 URL")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 64)
	out := make([]string, 0, 64)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, ok := resolveDetailURL(base, href)
		if !ok {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	})
	sort.Strings(out)
	return out, nil
}

func resolveDetailURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !sameSite(u.Host, base.Host) {
		return "", false
	}
	if !detailPathRE.MatchString(u.Path) {
		return "", false
	}
	u.Host = base.Host
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}

func sameSite(a, b string) bool {
	return trimWWW(a) == trimWWW(b)
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// IsDetailURL 判断 u 是否为详情页 URL（只看路径形态，不校验 host）。
func IsDetailURL(u string) bool {
	p, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return false
	}
	return detailPathRE.MatchString(p.Path)
}
