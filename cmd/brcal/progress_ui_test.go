package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
)

func TestFormatAttemptChain(t *testing.T) {
	attempts := []domain.FetchAttempt{
		{Fetcher: "http", Stage: "fetch", ErrorCode: "blocked", ErrorMsg: "blocked: challenge"},
		{Fetcher: "browser", Stage: "ok"},
	}
	got := formatAttemptChain(attempts, -1)
	if got != "http:fetch:blocked:blocked: challenge;browser:ok" {
		t.Fatalf("attempt chain 不符合预期：%q", got)
	}
	if got := formatAttemptChain(attempts, 1); strings.Contains(got, "browser") {
		t.Fatalf("max=1 时只应输出第一条：%q", got)
	}
	if formatAttemptChain(nil, -1) != "" {
		t.Fatalf("空 attempts 应输出空串")
	}
}

func TestProgressUI_RendersLevels(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.printConfig(config.EffectiveConfig{
		Dir:              "/data",
		CalendarYears:    []int{2025},
		Categories:       []string{"4k-uhd"},
		IgnoreProduction: true,
		Fetch:            config.FetchSettings{Mode: "http", MaxPages: 1, ProxyURL: "socks5://user:pw@127.0.0.1:1080"},
	})

	at := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	ui.Report(domain.Event{Kind: domain.EventStart, Level: domain.LevelInfo, Text: "开始抓取", At: at})
	ui.Report(domain.Event{Kind: domain.EventProgress, Percent: 45, At: at})
	ui.Report(domain.Event{Kind: domain.EventProgress, Percent: 47, At: at})
	ui.Report(domain.Event{Kind: domain.EventLog, Level: domain.LevelWarn, Text: "日期不确定", At: at})
	ui.Report(domain.Event{Kind: domain.EventItem, Level: domain.LevelInfo, Text: "Movie A → 15.11.2025", At: at})
	ui.Report(domain.Event{Kind: domain.EventDone, Level: domain.LevelSuccess, Text: "完成", Percent: 100, At: at})
	ui.stop()

	out := buf.String()
	for _, want := range []string{
		"配置（生效）",
		"months: 全年",
		"categories: 4k-uhd (4K UHD)",
		"proxy: on (socks5://127.0.0.1:1080, auth=on)",
		"INFO 开始抓取",
		"WARN 日期不确定",
		"Movie A → 15.11.2025",
		"OK",
		"完成",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if strings.Count(out, "进度: 4") != 1 {
		t.Fatalf("同一档位的进度只应打印一次：\n%s", out)
	}
	if ui.warnings != 1 || ui.items != 1 {
		t.Fatalf("计数不符合预期：warnings=%d items=%d", ui.warnings, ui.items)
	}
}

func TestFormatProxy(t *testing.T) {
	if formatProxy("") != "off" {
		t.Fatalf("空代理应为 off")
	}
	if got := formatProxy("http://proxy:8080"); got != "on (http://proxy:8080, auth=off)" {
		t.Fatalf("代理格式不符合预期：%q", got)
	}
}
