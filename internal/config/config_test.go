package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLoadEffective_DefaultsWithoutFile(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(eff.CalendarYears) != 1 || eff.CalendarYears[0] != time.Now().Year() {
		t.Fatalf("默认日历年份应为今年，实际 %v", eff.CalendarYears)
	}
	if len(eff.Categories) != 1 || eff.Categories[0] != "4k-uhd" {
		t.Fatalf("默认分类应为 4k-uhd，实际 %v", eff.Categories)
	}
	if !eff.IgnoreProduction {
		t.Fatalf("默认应忽略制作年份")
	}
	if eff.OutputPattern != DefaultOutputPattern {
		t.Fatalf("期望默认模板，实际 %q", eff.OutputPattern)
	}
	if eff.Fetch.Mode != "http" || eff.Fetch.MaxPages != 1 || eff.Fetch.Delay != DefaultDelay {
		t.Fatalf("fetch 默认值不符合预期：%+v", eff.Fetch)
	}
	if eff.Dir != cwd {
		t.Fatalf("期望 dir=%q，实际=%q", cwd, eff.Dir)
	}
	if r, ok := eff.Priorities.Rank("4k-uhd"); !ok || r != 0 {
		t.Fatalf("默认优先级不符合预期：%v", eff.Priorities)
	}
}

func TestLoadEffective_FileAndCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "cal")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writeFile(t, filepath.Join(root, FileName), []byte(`
calendar_years: [2025, 2026]
months: [11, 12]
categories: [4k-uhd, blu-ray-filme]
ignore_production: true
output_pattern: "cal_{year}_{category}.ics"
fetch:
  mode: auto
  delay_ms: 0
  max_pages: 3
`))

	eff, err := LoadEffective(cwd, CLIArgs{
		Dir:                 "cal",
		IgnoreProduction:    false,
		IgnoreProductionSet: true, // --ignore-production=false
		Months:              []int{1},
		MonthsSet:           true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Dir != root {
		t.Fatalf("期望 dir=%q，实际=%q", root, eff.Dir)
	}
	if eff.IgnoreProduction {
		t.Fatalf("CLI 应覆盖 ignore_production")
	}
	if len(eff.Months) != 1 || eff.Months[0] != 1 {
		t.Fatalf("CLI 应覆盖 months，实际 %v", eff.Months)
	}
	if len(eff.CalendarYears) != 2 || len(eff.Categories) != 2 {
		t.Fatalf("文件值未生效：%+v", eff)
	}
	if eff.Fetch.Mode != "auto" || eff.Fetch.Delay != 0 || eff.Fetch.MaxPages != 3 {
		t.Fatalf("fetch 配置未生效：%+v", eff.Fetch)
	}
}

func TestLoadEffective_InvalidYAML(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("calendar_years: [2025"))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_EnvOverrides(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, ".env"), []byte("BRCAL_PROXY_URL=socks5://127.0.0.1:1080\nBRCAL_FETCH_MODE=browser\n"))
	t.Setenv(EnvFetchMode, "auto")

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Fetch.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Fatalf(".env 未生效：%q", eff.Fetch.ProxyURL)
	}
	if eff.Fetch.Mode != "auto" {
		t.Fatalf("进程环境应覆盖 .env，实际 %q", eff.Fetch.Mode)
	}

	eff2, err := LoadEffective(cwd, CLIArgs{FetchMode: "http", FetchModeSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Fetch.Mode != "http" {
		t.Fatalf("CLI 应覆盖环境变量，实际 %q", eff2.Fetch.Mode)
	}
}

func TestMerge_ErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		fc   FileConfig
		cli  CLIArgs
		env  map[string]string
		code string
	}{
		{name: "empty years in file", fc: FileConfig{CalendarYears: []int{}}, code: ErrCodeNoYear},
		{name: "empty years from cli", cli: CLIArgs{YearsSet: true}, code: ErrCodeNoYear},
		{name: "empty categories", fc: FileConfig{Categories: []string{" "}}, code: ErrCodeNoCategory},
		{name: "bad placeholder", fc: FileConfig{OutputPattern: "x_{jahr}.ics"}, code: ErrCodeBadTemplate},
		{name: "path in template", cli: CLIArgs{OutputPattern: "../x.ics", OutputPatternSet: true}, code: ErrCodeBadTemplate},
		{name: "bad month", fc: FileConfig{Months: []int{13}}, code: ErrCodeInvalid},
		{name: "bad category slug", fc: FileConfig{Categories: []string{"4k uhd"}}, code: ErrCodeInvalid},
		{name: "bad mode", env: map[string]string{EnvFetchMode: "curl"}, code: ErrCodeInvalid},
		{name: "bad proxy", fc: FileConfig{Fetch: FetchConfig{ProxyURL: "ftp://x:21"}}, code: ErrCodeInvalid},
		{name: "bad base url", fc: FileConfig{Fetch: FetchConfig{BaseURL: "bluray-disc.de"}}, code: ErrCodeInvalid},
		{name: "negative delay", fc: FileConfig{Fetch: FetchConfig{DelayMS: intPtr(-1)}}, code: ErrCodeInvalid},
	}

	for _, c := range cases {
		_, err := Merge("/data", c.fc, c.cli, c.env, testNow)
		if Code(err) != c.code {
			t.Fatalf("%s: 期望 %q，实际 err=%v (code=%q)", c.name, c.code, err, Code(err))
		}
	}
}

func TestMerge_CategoryPriority(t *testing.T) {
	eff, err := Merge("/data", FileConfig{CategoryPriority: []string{"blu-ray-filme", "4k-uhd"}}, CLIArgs{}, nil, testNow)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if r, _ := eff.Priorities.Rank("blu-ray-filme"); r != 0 {
		t.Fatalf("自定义优先级未生效：%v", eff.Priorities)
	}
	if _, ok := eff.Priorities.Rank("serien"); ok {
		t.Fatalf("未列出的分类应无排名")
	}
}

func TestMerge_DedupesLists(t *testing.T) {
	eff, err := Merge("/data", FileConfig{CalendarYears: []int{2025, 2025}, Categories: []string{"4K-UHD", "4k-uhd"}}, CLIArgs{}, nil, testNow)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(eff.CalendarYears) != 1 || len(eff.Categories) != 1 {
		t.Fatalf("列表应去重：%v %v", eff.CalendarYears, eff.Categories)
	}
}

func TestProductionYearSet(t *testing.T) {
	eff := EffectiveConfig{CalendarYears: []int{2025}}
	if got := eff.ProductionYearSet(); len(got) != 1 || got[0] != 2025 {
		t.Fatalf("应回退到日历年份：%v", got)
	}
	eff.ReleaseYears = []int{2024}
	if got := eff.ProductionYearSet(); got[0] != 2024 {
		t.Fatalf("应回退到发行年份：%v", got)
	}
	eff.ProductionYears = []int{2023}
	if got := eff.ProductionYearSet(); got[0] != 2023 {
		t.Fatalf("应使用制作年份：%v", got)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ignore := false
	fc := FileConfig{CalendarYears: []int{2026}, Categories: []string{"serien"}, IgnoreProduction: &ignore}

	if err := Save(afero.NewOsFs(), dir, fc); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	got, exists, err := ReadFile(dir)
	if err != nil || !exists {
		t.Fatalf("读取失败：exists=%v err=%v", exists, err)
	}
	if len(got.CalendarYears) != 1 || got.CalendarYears[0] != 2026 || got.IgnoreProduction == nil || *got.IgnoreProduction {
		t.Fatalf("往返不一致：%+v", got)
	}

	if err := Save(afero.NewOsFs(), dir, FileConfig{OutputPattern: "{nope}"}); Code(err) != ErrCodeBadTemplate {
		t.Fatalf("非法配置不应保存，实际 err=%v", err)
	}
}

func TestParseIntList(t *testing.T) {
	got, err := ParseIntList(" 2025, 2026 ,,")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 || got[0] != 2025 || got[1] != 2026 {
		t.Fatalf("解析结果不符合预期：%v", got)
	}
	if _, err := ParseIntList("2025,x"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if got := ParseList(" a, ,b "); len(got) != 2 {
		t.Fatalf("解析结果不符合预期：%v", got)
	}
}

func intPtr(n int) *int { return &n }

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}

func TestWithDefaults(t *testing.T) {
	fc := WithDefaults(FileConfig{Months: []int{11}}, testNow)
	if len(fc.CalendarYears) != 1 || fc.CalendarYears[0] != 2025 {
		t.Fatalf("默认年份不符合预期：%v", fc.CalendarYears)
	}
	if len(fc.Categories) != 1 || fc.Categories[0] != "4k-uhd" {
		t.Fatalf("默认分类不符合预期：%v", fc.Categories)
	}
	if fc.IgnoreProduction == nil || !*fc.IgnoreProduction {
		t.Fatalf("默认应忽略制作年份")
	}
	if fc.OutputPattern != DefaultOutputPattern || len(fc.Months) != 1 || fc.ReleaseYears == nil {
		t.Fatalf("默认值不符合预期：%+v", fc)
	}
}
