package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/BRCal/internal/app/run"
	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，这里决定如何展示
// - keepalive：长时间没有新输出时定期打印一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	infoStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	mutedStyle   lipgloss.Style

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	percent     int
	items       int
	warnings    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	r := lipgloss.NewRenderer(w)
	return &progressUI{
		w:                  w,
		infoStyle:          r.NewStyle().Foreground(lipgloss.Color("#4ECDC4")),
		warnStyle:          r.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true),
		errorStyle:         r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		successStyle:       r.NewStyle().Foreground(lipgloss.Color("#95E1A3")).Bold(true),
		mutedStyle:         r.NewStyle().Foreground(lipgloss.Color("#8B8FA3")),
		keepaliveThreshold: 8 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

// printConfig 在运行开始前打印生效配置。
func (p *progressUI) printConfig(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] BRCal run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  dir: %s\n", eff.Dir)
	fmt.Fprintf(p.w, "  calendar_years: %s\n", joinInts(eff.CalendarYears, "(无)"))
	fmt.Fprintf(p.w, "  months: %s\n", joinInts(eff.Months, "全年"))
	fmt.Fprintf(p.w, "  categories: %s\n", categoryList(eff.Categories))
	fmt.Fprintf(p.w, "  release_years: %s\n", joinInts(eff.ReleaseYears, "不限"))
	if eff.IgnoreProduction {
		fmt.Fprintln(p.w, "  production_years: 不过滤")
	} else {
		fmt.Fprintf(p.w, "  production_years: %s\n", joinInts(eff.ProductionYearSet(), "(无)"))
	}
	fmt.Fprintf(p.w, "  fetch: mode=%s delay=%s max_pages=%d cache=%s\n",
		eff.Fetch.Mode, eff.Fetch.Delay, eff.Fetch.MaxPages, onOff(!eff.Fetch.NoCache))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.Fetch.ProxyURL))
	fmt.Fprintf(p.w, "  keep_duplicates: %s\n", onOff(eff.KeepDuplicates))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir())
	fmt.Fprintf(p.w, "  csv: %s  postgres: %s\n", onOff(eff.Export.CSV), onOff(strings.TrimSpace(eff.Export.PostgresDSN) != ""))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) Report(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case domain.EventStart:
		p.line(ev)
		if !p.tickerStarted {
			p.startTickerLocked()
		}
	case domain.EventProgress:
		// 只在跨过 10% 档位时打印，避免刷屏。
		if ev.Percent/10 > p.percent/10 {
			fmt.Fprintf(p.w, "%s\n", p.mutedStyle.Render(fmt.Sprintf("进度: %d%% elapsed=%s", ev.Percent, formatElapsed(time.Since(p.startedAt)))))
			p.lastPrinted = time.Now()
		}
		p.percent = ev.Percent
	case domain.EventItem:
		p.items++
		p.line(ev)
	case domain.EventDone, domain.EventError:
		p.line(ev)
		p.stopTickerLocked()
	default:
		if ev.Level == domain.LevelWarn {
			p.warnings++
		}
		p.line(ev)
	}
}

// stop 停止 keepalive（幂等）。
func (p *progressUI) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) line(ev domain.Event) {
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(p.w, "[%s] %s %s\n", at.Local().Format("15:04:05"), p.levelTag(ev.Level), truncate(ev.Text, 200))
	p.lastPrinted = time.Now()
}

func (p *progressUI) levelTag(level string) string {
	switch level {
	case domain.LevelWarn:
		return p.warnStyle.Render("WARN")
	case domain.LevelError:
		return p.errorStyle.Render("FAIL")
	case domain.LevelSuccess:
		return p.successStyle.Render(" OK ")
	default:
		return p.infoStyle.Render("INFO")
	}
}

func (p *progressUI) startTickerLocked() {
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
	}
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 8 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "%s\n", p.mutedStyle.Render(fmt.Sprintf("进度: %d%% items=%d warn=%d elapsed=%s",
						p.percent, p.items, p.warnings, formatElapsed(time.Since(p.startedAt)))))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func joinInts(v []int, empty string) string {
	if len(v) == 0 {
		return empty
	}
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, fmt.Sprint(n))
	}
	return strings.Join(parts, ",")
}

func categoryList(slugs []string) string {
	parts := make([]string, 0, len(slugs))
	for _, s := range slugs {
		parts = append(parts, fmt.Sprintf("%s (%s)", s, domain.CategoryLabel(s)))
	}
	return strings.Join(parts, ", ")
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatAttemptChain(attempts []domain.FetchAttempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Fetcher) + ":" + strings.TrimSpace(a.Stage)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
