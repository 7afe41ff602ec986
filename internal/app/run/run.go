package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/John-Robertt/BRCal/internal/app"
	"github.com/John-Robertt/BRCal/internal/app/planner"
	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/export"
	"github.com/John-Robertt/BRCal/internal/provider"
	"github.com/John-Robertt/BRCal/internal/provider/bluraydisc"
)

// ReleaseStore 是可选的数据库导出目标（PostgreSQL）。
type ReleaseStore interface {
	Write(ctx context.Context, runID string, items []domain.Item, now time.Time) error
	Close() error
}

// Deps 是一次运行的外部协作者；零值字段由 Execute 补默认值。
type Deps struct {
	Registry provider.Registry
	Fs       afero.Fs
	Clock    clockwork.Clock
	Limiter  *rate.Limiter // nil 时按 fetch.delay 构造
	RunID    string        // 空时自动生成

	OpenStore func(ctx context.Context, dsn string) (ReleaseStore, error)
}

// NewRunID 生成 8 位运行 ID。
func NewRunID() string { return uuid.NewString()[:8] }

func (d Deps) withDefaults(eff config.EffectiveConfig) Deps {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Limiter == nil {
		d.Limiter = NewLimiter(eff.Fetch.Delay)
	}
	if strings.TrimSpace(d.RunID) == "" {
		d.RunID = NewRunID()
	}
	if d.OpenStore == nil {
		d.OpenStore = func(ctx context.Context, dsn string) (ReleaseStore, error) {
			pw, err := export.OpenPostgres(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return pw, nil
		}
	}
	return d
}

// NewLimiter 构造礼貌抓取的限速器：两次请求至少间隔 delay；delay<=0 不限速。
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

type runner struct {
	eff  config.EffectiveConfig
	deps Deps
	obs  Observer
	log  zerolog.Logger

	rep     domain.RunReport
	visited map[string]struct{}
	items   []domain.Item
}

// Execute 执行一次完整运行：规划日历页 → 抓取并解析 → 过滤 → 去重 → 排序 → 导出。
//
// 约束：
// - 配置错误在任何抓取之前返回（*config.Error）
// - 单个页面抓取/解析失败只记日志并计入 report，不中断运行
// - ctx 取消会中断运行：report.Aborted=true，条目全部丢弃，返回 ctx.Err()
// - 返回的条目已去重标记并排序（含重复条目）
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) (domain.RunReport, []domain.Item, error) {
	deps = deps.withDefaults(eff)
	r := &runner{
		eff:     eff,
		deps:    deps,
		obs:     Tee(obs),
		log:     log.With().Str("run_id", deps.RunID).Logger(),
		visited: make(map[string]struct{}, 256),
	}
	r.rep = domain.RunReport{
		RunID:     deps.RunID,
		StartedAt: deps.Clock.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 128),
	}
	return r.execute(ctx)
}

func (r *runner) execute(ctx context.Context) (domain.RunReport, []domain.Item, error) {
	pages, err := r.preflight()
	if err != nil {
		r.log.Error().Err(err).Msg("配置无效")
		r.emit(domain.EventError, domain.LevelError, err.Error(), 0, nil)
		return r.finish(), nil, err
	}
	output := planner.OutputName(r.eff)
	r.rep.Output = output

	r.log.Info().Int("pages", len(pages)).Str("mode", r.eff.Fetch.Mode).Str("output", output).Msg("开始运行")
	r.emit(domain.EventStart, domain.LevelInfo,
		fmt.Sprintf("开始抓取：%d 个日历页（年份 %s，分类 %s）", len(pages), intSet(r.eff.CalendarYears), strings.Join(r.eff.Categories, ",")),
		0, map[string]any{"run_id": r.deps.RunID, "pages": len(pages), "output": output})

	scrapeStarted := r.deps.Clock.Now()
	for i, lp := range pages {
		if err := r.scrapeListing(ctx, lp); err != nil {
			return r.abort(err)
		}
		r.emit(domain.EventProgress, "", "", (i+1)*90/len(pages), nil)
	}
	r.emit(domain.EventPhase, domain.LevelInfo,
		fmt.Sprintf("抓取完成：%d 页，%d 个链接，%d 条解析成功", r.rep.Summary.Pages, r.rep.Summary.Links, len(r.items)),
		90, map[string]any{"pages": r.rep.Summary.Pages, "links": r.rep.Summary.Links, "items": len(r.items), "dur_ms": r.deps.Clock.Since(scrapeStarted).Milliseconds()})

	kept, dropped := Filter(r.eff, r.items)
	for _, d := range dropped {
		res := domain.ResultFromItem(d.Item, domain.StatusFiltered)
		res.Note = d.Reason
		r.rep.Items = append(r.rep.Items, res)
		r.log.Info().Str("url", d.Item.URL).Str("reason", d.Reason).Msg("条目被过滤")
	}
	if len(dropped) > 0 {
		r.emit(domain.EventLog, domain.LevelInfo, fmt.Sprintf("已过滤 %d 条", len(dropped)), 0, map[string]any{"filtered": len(dropped)})
	}

	res, err := app.ResolveDuplicates(kept, r.eff.Priorities)
	if err != nil {
		r.log.Error().Err(err).Msg("去重失败")
		r.emit(domain.EventError, domain.LevelError, fmt.Sprintf("去重失败：%v", err), 0, nil)
		return r.finish(), nil, err
	}
	SortItems(kept)
	r.items = kept
	if res.Duplicates > 0 {
		r.emit(domain.EventLog, domain.LevelInfo,
			fmt.Sprintf("发现 %d 组重复标题，%d 条标记为重复", len(res.Groups), res.Duplicates),
			95, map[string]any{"groups": len(res.Groups), "duplicates": res.Duplicates})
	}

	for _, it := range kept {
		r.rep.Items = append(r.rep.Items, domain.ResultFromItem(it, itemStatus(it)))
	}

	if err := r.export(ctx, output); err != nil {
		r.log.Error().Err(err).Msg("导出失败")
		r.emit(domain.EventError, domain.LevelError, err.Error(), 0, nil)
		return r.finish(), kept, err
	}

	rep := r.finish()
	r.log.Info().
		Int("found", rep.Summary.Found).
		Int("exported", rep.Summary.Exported).
		Int("duplicates", rep.Summary.Duplicates).
		Int("failed", rep.Summary.Failed).
		Msg("运行结束")
	r.emit(domain.EventDone, domain.LevelSuccess,
		fmt.Sprintf("完成：%d 个日历事件写入 %s", rep.Summary.Exported, output),
		100, map[string]any{
			"output":     output,
			"found":      rep.Summary.Found,
			"exported":   rep.Summary.Exported,
			"duplicates": rep.Summary.Duplicates,
			"filtered":   rep.Summary.Filtered,
			"undated":    rep.Summary.Undated,
			"failed":     rep.Summary.Failed,
		})
	return rep, kept, nil
}

func (r *runner) preflight() ([]domain.ListingPage, error) {
	if strings.TrimSpace(r.eff.Dir) == "" {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: "dir", Err: errors.New("不能为空")}
	}
	if len(r.eff.CalendarYears) == 0 {
		return nil, &config.Error{Code: config.ErrCodeNoYear}
	}
	if len(r.eff.Categories) == 0 {
		return nil, &config.Error{Code: config.ErrCodeNoCategory}
	}
	if err := config.CheckOutputTemplate(r.eff.OutputPattern); err != nil {
		return nil, &config.Error{Code: config.ErrCodeBadTemplate, Path: "output_pattern", Err: err}
	}
	if _, err := provider.FallbackOrder(strings.ToLower(strings.TrimSpace(r.eff.Fetch.Mode))); err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: "fetch.mode", Err: err}
	}
	pages, err := planner.Pages(r.eff)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: "fetch.base_url", Err: err}
	}
	return pages, nil
}

// scrapeListing 抓取一个日历页及其翻页；某页没有新链接时停止翻页。
func (r *runner) scrapeListing(ctx context.Context, first domain.ListingPage) error {
	maxPages := r.eff.Fetch.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	for n := 1; n <= maxPages; n++ {
		lp := first
		if n > 1 {
			next, err := planner.Page(r.eff, first.Category, first.Year, first.Month, n)
			if err != nil {
				return err
			}
			lp = next
		}

		html, attempts, err := r.fetch(ctx, lp.URL)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			r.fetchFailed(lp.URL, lp.Category, attempts, err)
			return nil
		}
		r.rep.Summary.Pages++

		links, err := bluraydisc.ExtractLinks(html, lp.URL)
		if err != nil {
			r.parseFailed(lp.URL, lp.Category, err)
			return nil
		}
		fresh := make([]string, 0, len(links))
		for _, u := range links {
			if _, seen := r.visited[u]; seen {
				continue
			}
			r.visited[u] = struct{}{}
			fresh = append(fresh, u)
		}
		r.rep.Summary.Links += len(fresh)
		r.log.Debug().Str("url", lp.URL).Int("links", len(links)).Int("new", len(fresh)).Msg("日历页已解析")
		r.emit(domain.EventLog, domain.LevelInfo,
			fmt.Sprintf("%s %04d-%02d 第 %d 页：%d 个新链接", domain.CategoryLabel(lp.Category), lp.Year, int(lp.Month), lp.Page, len(fresh)),
			0, map[string]any{"url": lp.URL, "links": len(fresh)})
		if len(fresh) == 0 {
			return nil
		}

		for _, u := range fresh {
			if err := r.scrapeDetail(ctx, u, lp.Category); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *runner) scrapeDetail(ctx context.Context, pageURL, category string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	html, attempts, err := r.fetch(ctx, pageURL)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		r.fetchFailed(pageURL, category, attempts, err)
		return nil
	}

	it, err := bluraydisc.ParseDetail(html, pageURL)
	if err != nil {
		r.parseFailed(pageURL, category, err)
		return nil
	}
	it.Category = category

	if it.DateRule == domain.DateRuleLoose {
		r.log.Warn().Str("url", pageURL).Str("date", it.ReleaseDate.Format("2006-01-02")).Msg("发行日期来自启发式匹配")
		r.emit(domain.EventLog, domain.LevelWarn,
			fmt.Sprintf("日期不确定（启发式）：%s → %s", it.DisplayTitle(), it.ReleaseDate.Format("02.01.2006")),
			0, map[string]any{"url": pageURL})
	}

	r.items = append(r.items, it)
	date := "无日期"
	if it.HasDate() {
		date = it.ReleaseDate.Format("02.01.2006")
	}
	r.emit(domain.EventItem, domain.LevelInfo, fmt.Sprintf("%s → %s", it.DisplayTitle(), date),
		0, map[string]any{"url": pageURL, "category": category, "date_rule": it.DateRule})
	return nil
}

// fetch 先等待限速器，再按 fetch.mode 抓取。
func (r *runner) fetch(ctx context.Context, pageURL string) ([]byte, []domain.FetchAttempt, error) {
	if err := r.deps.Limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	html, used, attempts, err := provider.FetchTrace(ctx, r.deps.Registry, r.eff.Fetch.Mode, pageURL)
	if err == nil {
		r.log.Debug().Str("url", pageURL).Str("fetcher", used).Int("bytes", len(html)).Msg("页面已抓取")
	}
	return html, toFetchAttempts(attempts), err
}

func (r *runner) fetchFailed(pageURL, category string, attempts []domain.FetchAttempt, err error) {
	r.log.Warn().Err(err).Str("url", pageURL).Str("category", category).Msg("抓取失败，已跳过")
	r.emit(domain.EventLog, domain.LevelWarn, fmt.Sprintf("抓取失败，已跳过：%s（%v）", pageURL, err),
		0, map[string]any{"url": pageURL})
	r.rep.Items = append(r.rep.Items, domain.ItemResult{
		URL:       pageURL,
		Category:  category,
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeFetchFailed,
		ErrorMsg:  err.Error(),
		Attempts:  attempts,
	})
}

func (r *runner) parseFailed(pageURL, category string, err error) {
	r.log.Warn().Err(err).Str("url", pageURL).Str("category", category).Msg("解析失败，已跳过")
	r.emit(domain.EventLog, domain.LevelWarn, fmt.Sprintf("解析失败，已跳过：%s（%v）", pageURL, err),
		0, map[string]any{"url": pageURL})
	r.rep.Items = append(r.rep.Items, domain.ItemResult{
		URL:       pageURL,
		Category:  category,
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeParseFailed,
		ErrorMsg:  err.Error(),
	})
}

// export 写 ICS（必需），然后是可选的 CSV / PostgreSQL，最后写 report。
// 只有 ICS 失败会让运行失败；其他导出失败只告警。
func (r *runner) export(ctx context.Context, output string) error {
	now := r.deps.Clock.Now()
	base := planner.BaseName(output)
	w := export.NewWriter(r.deps.Fs, r.eff.OutDir())

	n, err := w.WriteICS(output, export.CalendarItems(r.items, r.eff.KeepDuplicates), now)
	if err != nil {
		return fmt.Errorf("%s：写入 %s 失败：%w", domain.ErrCodeExportFailed, output, err)
	}
	r.log.Info().Str("file", output).Int("events", n).Msg("ICS 已写入")

	if r.eff.Export.CSV {
		name := base + ".csv"
		if err := w.WriteCSV(name, r.items); err != nil {
			r.warn(fmt.Sprintf("写入 %s 失败：%v", name, err), err)
		} else {
			r.log.Info().Str("file", name).Int("rows", len(r.items)).Msg("CSV 已写入")
		}
	}

	if dsn := strings.TrimSpace(r.eff.Export.PostgresDSN); dsn != "" {
		if err := r.exportPostgres(ctx, dsn, now); err != nil {
			r.warn(fmt.Sprintf("写入 PostgreSQL 失败：%v", err), err)
		}
	}

	rep := r.rep
	rep.Items = append([]domain.ItemResult(nil), r.rep.Items...)
	rep.FinishedAt = r.deps.Clock.Now()
	if err := w.WriteReport(base+".report.json", rep); err != nil {
		r.warn(fmt.Sprintf("写入运行报告失败：%v", err), err)
	}
	return nil
}

func (r *runner) exportPostgres(ctx context.Context, dsn string, now time.Time) error {
	store, err := r.deps.OpenStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			r.log.Warn().Err(cerr).Msg("关闭 PostgreSQL 连接失败")
		}
	}()
	if err := store.Write(ctx, r.deps.RunID, r.items, now); err != nil {
		return err
	}
	r.log.Info().Int("rows", len(r.items)).Msg("PostgreSQL 已写入")
	return nil
}

func (r *runner) warn(text string, err error) {
	r.log.Warn().Err(err).Msg(text)
	r.emit(domain.EventLog, domain.LevelWarn, text, 0, nil)
}

func (r *runner) abort(err error) (domain.RunReport, []domain.Item, error) {
	r.rep.Aborted = true
	r.items = nil
	r.log.Warn().Err(err).Msg("运行已中断")
	r.emit(domain.EventError, domain.LevelError, fmt.Sprintf("运行已中断：%v", err), 0, map[string]any{"aborted": true})
	return r.finish(), nil, err
}

func (r *runner) finish() domain.RunReport {
	r.rep.FinishedAt = r.deps.Clock.Now().UTC()
	r.rep.Finalize()
	return r.rep
}

func (r *runner) emit(kind, level, text string, percent int, fields map[string]any) {
	r.obs.Report(domain.Event{
		Kind:    kind,
		Level:   level,
		Text:    text,
		Percent: percent,
		Fields:  fields,
		At:      r.deps.Clock.Now().UTC(),
	})
}

func itemStatus(it domain.Item) string {
	switch {
	case !it.Canonical:
		return domain.StatusDuplicate
	case !it.HasDate():
		return domain.StatusUndated
	default:
		return domain.StatusExported
	}
}

func toFetchAttempts(in []provider.Attempt) []domain.FetchAttempt {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.FetchAttempt, 0, len(in))
	for _, a := range in {
		fa := domain.FetchAttempt{Fetcher: a.Fetcher, Stage: a.Stage}
		if a.Err != nil {
			fa.ErrorCode = attemptCode(a.Err)
			fa.ErrorMsg = a.Err.Error()
		}
		out = append(out, fa)
	}
	return out
}

func attemptCode(err error) string {
	var se *provider.HTTPStatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("http_%d", se.StatusCode)
	}
	var be *provider.BlockedError
	if errors.As(err, &be) {
		return be.Code()
	}
	return domain.ErrCodeFetchFailed
}
