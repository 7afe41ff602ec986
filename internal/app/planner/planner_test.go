package planner

import (
	"testing"
	"time"

	"github.com/John-Robertt/BRCal/internal/config"
)

func testConfig(t *testing.T, fc config.FileConfig) config.EffectiveConfig {
	t.Helper()
	eff, err := config.Merge("/data", fc, config.CLIArgs{}, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return eff
}

func TestPages_CrossProduct(t *testing.T) {
	eff := testConfig(t, config.FileConfig{
		CalendarYears: []int{2025, 2026},
		Months:        []int{11, 12},
		Categories:    []string{"4k-uhd", "blu-ray-filme"},
	})

	pages, err := Pages(eff)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(pages) != 8 {
		t.Fatalf("期望 8 个日历页，实际 %d", len(pages))
	}
	first := pages[0]
	if first.URL != "https://bluray-disc.de/4k-uhd/kalender?id=2025-11" {
		t.Fatalf("首个 URL 不符合预期：%q", first.URL)
	}
	if first.Year != 2025 || first.Month != time.November || first.Category != "4k-uhd" || first.Page != 1 {
		t.Fatalf("首个日历页字段不符合预期：%+v", first)
	}
	if pages[2].Category != "blu-ray-filme" || pages[4].Year != 2026 {
		t.Fatalf("顺序应为 年份 → 分类 → 月份：%+v", pages)
	}
}

func TestPages_AllMonthsByDefault(t *testing.T) {
	eff := testConfig(t, config.FileConfig{CalendarYears: []int{2025}})

	pages, err := Pages(eff)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(pages) != 12 {
		t.Fatalf("未指定月份时应覆盖全年，实际 %d", len(pages))
	}
	if pages[11].Month != time.December {
		t.Fatalf("最后一页应为 12 月：%+v", pages[11])
	}
}

func TestPage_NextPage(t *testing.T) {
	eff := testConfig(t, config.FileConfig{Fetch: config.FetchConfig{BaseURL: "http://127.0.0.1:8080/"}})

	lp, err := Page(eff, "serien", 2025, time.March, 2)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if lp.URL != "http://127.0.0.1:8080/serien/kalender?id=2025-03&page=2" {
		t.Fatalf("URL 不符合预期：%q", lp.URL)
	}
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		name string
		fc   config.FileConfig
		want string
	}{
		{
			name: "default pattern appends category",
			fc:   config.FileConfig{CalendarYears: []int{2025}},
			want: "bluray_2025_all_4k-uhd.ics",
		},
		{
			name: "months sorted and joined",
			fc:   config.FileConfig{CalendarYears: []int{2025}, Months: []int{12, 11}, OutputPattern: "cal_{year}_{months}_{slug}"},
			want: "cal_2025_11-12_4k-uhd.ics",
		},
		{
			name: "release years appended when missing",
			fc:   config.FileConfig{CalendarYears: []int{2025, 2026}, ReleaseYears: []int{2026}, Categories: []string{"serien"}, OutputPattern: "x_{year}_{category}.ics"},
			want: "x_2025-2026_serien_2026.ics",
		},
		{
			name: "release placeholder ALL",
			fc:   config.FileConfig{CalendarYears: []int{2025}, OutputPattern: "r_{release_years}_{category}.ics"},
			want: "r_ALL_4k-uhd.ics",
		},
	}

	for _, c := range cases {
		got := OutputName(testConfig(t, c.fc))
		if got != c.want {
			t.Fatalf("%s: 期望 %q，实际 %q", c.name, c.want, got)
		}
	}
	if BaseName("a.ics") != "a" {
		t.Fatalf("BaseName 不符合预期")
	}
}
