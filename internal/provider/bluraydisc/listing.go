package bluraydisc

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL 是站点根地址；测试与镜像可通过配置覆盖。
const DefaultBaseURL = "https://bluray-disc.de"

// ListingURL 拼出分类发行日历页：
// <base>/<category>/kalender?id=YYYY-MM[&page=N]
//
// page<=1 时不带 page 参数（与站点首页链接保持一致，便于缓存命中与日志比对）。
func ListingURL(baseURL, category string, year int, month time.Month, page int) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	category = strings.Trim(strings.TrimSpace(category), "/")
	if category == "" {
		return "", fmt.Errorf("category 不能为空")
	}
	if month < time.January || month > time.December {
		return "", fmt.Errorf("非法月份：%d", month)
	}

	u, err := url.Parse(base + "/" + url.PathEscape(category) + "/kalender")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("id", fmt.Sprintf("%04d-%02d", year, int(month)))
	if page > 1 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
