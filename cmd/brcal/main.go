package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/BRCal/internal/app/run"
	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/logging"
	"github.com/John-Robertt/BRCal/internal/server"
)

const defaultAddr = "127.0.0.1:5000"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "serve":
		if code := serveCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ra.CLI)
	if err != nil {
		emitReport(os.Stdout, os.Stderr, isTTY(os.Stdout), reportForConfigError(err))
		return 1
	}

	closer, err := logging.Init(eff.Dir, ra.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := run.Deps{RunID: run.NewRunID()}
	reg, closeFetchers, err := run.NewRegistry(eff, afero.NewOsFs(), clockwork.NewRealClock())
	if err != nil {
		emitReport(os.Stdout, os.Stderr, isTTY(os.Stdout), reportForConfigError(err))
		return 1
	}
	defer closeFetchers()
	deps.Registry = reg

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		ui.printConfig(eff)
		defer ui.stop()
		obs = ui
	}

	rr, _, err := run.Execute(ctx, eff, deps, obs)
	if err != nil {
		log.Error().Err(err).Msg("运行失败")
	}

	emitReport(os.Stdout, os.Stderr, isTTY(os.Stdout), rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	switch {
	case rr.Aborted:
		return 130
	case err != nil:
		if len(rr.Items) == 0 {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return 1
	case rr.Summary.Failed > 0:
		return 1
	default:
		return 0
	}
}

func serveCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage()
			return 0
		}
	}

	sa, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	dir := cwd
	if sa.Dir != "" {
		dir = sa.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
	}
	dir = filepath.Clean(dir)

	// 启动前校验一次，避免带着坏配置起服务。
	if _, err := config.LoadEffective(dir, config.CLIArgs{}); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误：%v\n", err)
		return 1
	}

	closer, err := logging.Init(dir, sa.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{Dir: dir})
	httpSrv := &http.Server{
		Addr:              sa.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "BRCal web 界面：http://%s  (dir=%s)\n", sa.Addr, dir)
		log.Info().Str("addr", sa.Addr).Str("dir", dir).Msg("web 服务启动")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("web 服务异常退出")
		fmt.Fprintf(os.Stderr, "web 服务异常退出：%v\n", err)
		return 1
	}
	log.Info().Msg("web 服务已停止")
	return 0
}

type runArgs struct {
	CLI     config.CLIArgs
	Verbose bool
}

// parseRunArgs 支持 "--flag value" 与 "--flag=value" 两种写法；布尔参数支持 "--flag[=true|false]"。
func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}
	cli := &ra.CLI

	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			if cli.Dir != "" {
				return runArgs{}, fmt.Errorf("重复的 dir：%q 与 %q", cli.Dir, a)
			}
			cli.Dir = a
			continue
		}

		name, val, hasVal := strings.Cut(a, "=")
		value := func() (string, error) {
			if hasVal {
				return val, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s 需要一个值", name)
			}
			i++
			return args[i], nil
		}
		boolValue := func() (bool, error) {
			if !hasVal {
				return true, nil
			}
			b, err := strconv.ParseBool(val)
			if err != nil {
				return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, val)
			}
			return b, nil
		}

		var err error
		switch name {
		case "--years":
			cli.Years, err = intListFlag(name, value)
			cli.YearsSet = true
		case "--months":
			cli.Months, err = intListFlag(name, value)
			cli.MonthsSet = true
		case "--release-years":
			cli.ReleaseYears, err = intListFlag(name, value)
			cli.ReleaseYearsSet = true
		case "--production-years":
			cli.ProductionYears, err = intListFlag(name, value)
			cli.ProductionYearsSet = true
		case "--categories":
			var v string
			if v, err = value(); err == nil {
				cli.Categories = config.ParseList(v)
				cli.CategoriesSet = true
			}
		case "--out":
			if cli.OutputPattern, err = value(); err == nil {
				cli.OutputPatternSet = true
			}
		case "--fetch-mode":
			if cli.FetchMode, err = value(); err == nil {
				cli.FetchModeSet = true
			}
		case "--ignore-production":
			if cli.IgnoreProduction, err = boolValue(); err == nil {
				cli.IgnoreProductionSet = true
			}
		case "--keep-duplicates":
			if cli.KeepDuplicates, err = boolValue(); err == nil {
				cli.KeepDuplicatesSet = true
			}
		case "-v", "--verbose":
			ra.Verbose, err = boolValue()
		default:
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if err != nil {
			return runArgs{}, err
		}
	}

	if cli.FetchModeSet {
		switch strings.ToLower(strings.TrimSpace(cli.FetchMode)) {
		case "http", "browser", "auto":
		case "":
			return runArgs{}, fmt.Errorf("--fetch-mode 不能为空")
		default:
			return runArgs{}, fmt.Errorf("--fetch-mode 只能是 http、browser 或 auto，实际是 %q", cli.FetchMode)
		}
	}
	return ra, nil
}

func intListFlag(name string, value func() (string, error)) ([]int, error) {
	v, err := value()
	if err != nil {
		return nil, err
	}
	out, err := config.ParseIntList(v)
	if err != nil {
		return nil, fmt.Errorf("%s：%w", name, err)
	}
	return out, nil
}

type serveArgs struct {
	Dir     string
	Addr    string
	Verbose bool
}

func parseServeArgs(args []string) (serveArgs, error) {
	sa := serveArgs{Addr: defaultAddr}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--addr":
			if i+1 >= len(args) {
				return serveArgs{}, fmt.Errorf("--addr 需要一个值")
			}
			i++
			sa.Addr = args[i]
		case strings.HasPrefix(a, "--addr="):
			sa.Addr = strings.TrimPrefix(a, "--addr=")
		case a == "-v" || a == "--verbose":
			sa.Verbose = true
		case strings.HasPrefix(a, "-"):
			return serveArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if sa.Dir != "" {
				return serveArgs{}, fmt.Errorf("重复的 dir：%q 与 %q", sa.Dir, a)
			}
			sa.Dir = a
		}
	}
	if strings.TrimSpace(sa.Addr) == "" {
		return serveArgs{}, fmt.Errorf("--addr 不能为空")
	}
	return sa, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  brcal run [dir] [参数...]
  brcal serve [dir] [--addr 127.0.0.1:5000]

命令：
  run    抓取 bluray-disc.de 发行日历并导出 ICS
  serve  启动本地 web 界面

使用 "brcal run --help" / "brcal serve --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  brcal run [dir] [参数...]

参数：
  --years 2025,2026          日历年份（默认今年）
  --months 11,12             月份（默认全年）
  --categories 4k-uhd,...    分类 slug（默认 4k-uhd）
  --release-years 2025       只保留这些年份发行的条目
  --production-years 2025    制作年份过滤使用的年份（默认同 release-years，其次日历年份）
  --ignore-production[=bool] 不按制作年份过滤（默认 true）
  --out pattern              输出文件名模板：{year} {months} {category}/{slug} {release_years}
  --fetch-mode http|browser|auto
  --keep-duplicates[=bool]   重复条目也写入日历
  -v, --verbose              在 stderr 输出调试日志
  -h, --help                 显示帮助

配置文件 <dir>/brcal.yaml 与 <dir>/.env 可选；CLI 参数优先。
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  brcal serve [dir] [--addr 127.0.0.1:5000] [-v]

参数：
  --addr      监听地址（默认 127.0.0.1:5000）
  -v          在 stderr 输出调试日志
  -h, --help  显示帮助
`)
}

// emitReport 输出最终结果：stdout 是 TTY 时打印摘要；否则 stdout 只输出一个 RunReport JSON，摘要走 stderr。
func emitReport(stdout, stderr io.Writer, stdoutTTY bool, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：found=%d exported=%d duplicates=%d filtered=%d undated=%d failed=%d",
		rr.Summary.Found, rr.Summary.Exported, rr.Summary.Duplicates, rr.Summary.Filtered, rr.Summary.Undated, rr.Summary.Failed,
	)
	if rr.Aborted {
		summary += " (已中断)"
	}

	if stdoutTTY {
		fmt.Fprintln(stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.URL
			if key == "" {
				key = "<config>"
			}
			chain := formatAttemptChain(it.Attempts, -1)
			if chain != "" {
				chain = " attempts=" + chain
			}
			fmt.Fprintf(stderr, "%s %s: %s%s\n", key, it.ErrorCode, truncate(it.ErrorMsg, 200), chain)
		}
		return
	}

	_ = json.NewEncoder(stdout).Encode(rr)
	fmt.Fprintln(stderr, summary)
}

func reportForConfigError(err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	if w == nil || rr.Output == "" || rr.Aborted {
		return
	}
	fmt.Fprintf(w, "ics: %s\n", filepath.Join(eff.OutDir(), rr.Output))
	fmt.Fprintf(w, "log: %s\n", filepath.Join(eff.Dir, logging.FileName))
}
