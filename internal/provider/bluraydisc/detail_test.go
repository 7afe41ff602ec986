package bluraydisc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/BRCal/internal/domain"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败 %q：%v", name, err)
	}
	return b
}

func TestParseDetail_Fixtures(t *testing.T) {
	cases := []struct {
		fixture  string
		url      string
		title    string
		prodYear int
		date     time.Time
		rule     string
	}{
		{
			fixture:  "detail_full.html",
			url:      "https://bluray-disc.de/blu-ray-filme/1-movie-a",
			title:    "Movie A",
			prodYear: 2025,
			date:     domain.Date(2025, time.November, 15),
			rule:     domain.DateRuleAbNumeric,
		},
		{
			fixture:  "detail_monthname.html",
			url:      "https://bluray-disc.de/blu-ray-filme/2-movie-a-steelbook",
			title:    "Movie A (Steelbook)",
			prodYear: 2025,
			date:     domain.Date(2025, time.November, 20),
			rule:     domain.DateRuleAbMonth,
		},
	}

	for _, c := range cases {
		it, err := ParseDetail(readFixture(t, c.fixture), c.url)
		if err != nil {
			t.Fatalf("%s: 不期望错误：%v", c.fixture, err)
		}
		if it.Title != c.title {
			t.Fatalf("%s: 期望 title=%q，实际 %q", c.fixture, c.title, it.Title)
		}
		if it.ProductionYear != c.prodYear {
			t.Fatalf("%s: 期望 production_year=%d，实际 %d", c.fixture, c.prodYear, it.ProductionYear)
		}
		if !it.ReleaseDate.Equal(c.date) {
			t.Fatalf("%s: 期望 release_date=%s，实际 %s", c.fixture, c.date.Format("2006-01-02"), it.ReleaseDate.Format("2006-01-02"))
		}
		if it.DateRule != c.rule {
			t.Fatalf("%s: 期望 rule=%q，实际 %q", c.fixture, c.rule, it.DateRule)
		}
		if it.URL != c.url {
			t.Fatalf("%s: URL 不应被改写：%q", c.fixture, it.URL)
		}
	}
}

func TestParseDetail_EmptyPage(t *testing.T) {
	u := "https://bluray-disc.de/blu-ray-filme/3-leer"
	it, err := ParseDetail(readFixture(t, "detail_empty.html"), u)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if it.Title != "" || it.ProductionYear != 0 || it.HasDate() {
		t.Fatalf("空页面不应解析出字段：%+v", it)
	}
	if it.DisplayTitle() != u {
		t.Fatalf("无标题时展示标题应回退为 URL，实际 %q", it.DisplayTitle())
	}
}

func TestParseDetail_ZeroBytes(t *testing.T) {
	it, err := ParseDetail(nil, "https://bluray-disc.de/blu-ray-filme/4")
	if err != nil {
		t.Fatalf("空输入不应报错：%v", err)
	}
	if it.Title != "" || it.HasDate() {
		t.Fatalf("空输入不应解析出字段：%+v", it)
	}
}

func TestParseDetail_RequiresURL(t *testing.T) {
	if _, err := ParseDetail([]byte("<html/>"), " "); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestParseDetail_SkipsEmptyHeading(t *testing.T) {
	page := []byte(`<html><body><h1> </h1><h2>Echter Titel</h2></body></html>`)
	it, err := ParseDetail(page, "https://bluray-disc.de/blu-ray-filme/5")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if it.Title != "Echter Titel" {
		t.Fatalf("期望跳过空标题，实际 %q", it.Title)
	}
}

func TestParseDetail_ZeroYearDateIsIgnored(t *testing.T) {
	page := []byte(`<html><body><h1>Movie Z</h1><p>Termin: 01.01.0001</p></body></html>`)
	it, err := ParseDetail(page, "https://bluray-disc.de/blu-ray-filme/6")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if it.HasDate() || it.DateRule != "" {
		t.Fatalf("无效年份不应产生日期：date=%s rule=%q", it.ReleaseDate, it.DateRule)
	}
}

func TestProductionYear(t *testing.T) {
	cases := map[string]int{
		"Produktion: 2019 USA":         2019,
		"Produktionsjahr 2021":         2021,
		"Film (2018) Produktion: 2017": 2017,
		"Film (2018)":                  2018,
		"Laufzeit 120 Min.":            0,
		"Produktion: unbekannt (1999)": 1999,
	}
	for in, want := range cases {
		if got := productionYear(in); got != want {
			t.Fatalf("productionYear(%q) 期望 %d，实际 %d", in, want, got)
		}
	}
}
