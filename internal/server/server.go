package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/John-Robertt/BRCal/internal/app/run"
	"github.com/John-Robertt/BRCal/internal/config"
	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/scan"
)

//go:embed index.html
var indexHTML []byte

// DefaultKeepAlive 是 SSE 空闲时发送注释行的间隔。
const DefaultKeepAlive = 30 * time.Second

// apiTimeout 只作用于普通 API；SSE 是长连接，不套超时。
const apiTimeout = 30 * time.Second

// ExecFunc 执行一次运行；server 只关心 report 与 error，事件通过 obs 推送。
type ExecFunc func(ctx context.Context, eff config.EffectiveConfig, runID string, obs run.Observer) (domain.RunReport, error)

// Options 配置 Server；零值字段使用默认实现。
type Options struct {
	Dir       string
	Fs        afero.Fs
	Clock     clockwork.Clock
	KeepAlive time.Duration

	// Load 读取最新的生效配置（每次启动运行前调用）。
	Load func() (config.EffectiveConfig, error)
	Exec ExecFunc
}

// Server 是本地 web 界面：配置读写、启动/取消运行、SSE 进度、导出文件下载。
type Server struct {
	opts Options
	runs *runRegistry

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	router chi.Router
}

func New(opts Options) *Server {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.Load == nil {
		dir := opts.Dir
		opts.Load = func() (config.EffectiveConfig, error) {
			return config.LoadEffective(dir, config.CLIArgs{})
		}
	}
	if opts.Exec == nil {
		opts.Exec = defaultExec(opts.Fs, opts.Clock)
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		runs:    newRunRegistry(),
		baseCtx: ctx,
		stop:    stop,
	}
	s.router = s.routes()
	return s
}

func defaultExec(fs afero.Fs, clock clockwork.Clock) ExecFunc {
	return func(ctx context.Context, eff config.EffectiveConfig, runID string, obs run.Observer) (domain.RunReport, error) {
		reg, closeFn, err := run.NewRegistry(eff, fs, clock)
		if err != nil {
			return domain.RunReport{}, err
		}
		defer closeFn()
		rep, _, err := run.Execute(ctx, eff, run.Deps{Registry: reg, Fs: fs, Clock: clock, RunID: runID}, obs)
		return rep, err
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Close 取消所有运行并等待其结束。
func (s *Server) Close() {
	s.stop()
	s.runs.cancelAll()
	s.wg.Wait()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", s.handleIndex)
	r.Get("/download/{name}", s.handleDownload)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/runs/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(apiTimeout))
			r.Get("/config", s.handleGetConfig)
			r.Put("/config", s.handlePutConfig)
			r.Get("/categories", s.handleCategories)
			r.Get("/runs", s.handleListRuns)
			r.Post("/runs", s.handleStartRun)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Delete("/runs/{id}", s.handleCancelRun)
			r.Get("/exports", s.handleExports)
		})
	})
	return r
}

// StartRun 启动一次运行并立即返回 run_id。fc 非 nil 时先校验并保存配置。
// 配置错误在启动前返回（*config.Error）。
func (s *Server) StartRun(fc *config.FileConfig) (string, error) {
	if err := s.baseCtx.Err(); err != nil {
		return "", errors.New("server 正在关闭")
	}
	if fc != nil {
		if err := config.Save(s.opts.Fs, s.opts.Dir, *fc); err != nil {
			return "", err
		}
	}
	eff, err := s.opts.Load()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	var rs *runState
	for {
		rs = newRunState(run.NewRunID(), s.opts.Clock.Now(), cancel)
		if s.runs.add(rs) {
			break
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		lg := log.With().Str("run_id", rs.id).Logger()
		lg.Info().Msg("web 运行开始")
		rep, err := s.opts.Exec(ctx, eff, rs.id, rs)
		rs.finish(rep, err, s.opts.Clock.Now())
		if err != nil {
			lg.Warn().Err(err).Msg("web 运行结束（失败）")
			return
		}
		lg.Info().Int("exported", rep.Summary.Exported).Msg("web 运行结束")
	}()
	return rs.id, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// configView 是 GET /api/config 的响应。
type configView struct {
	Config       config.FileConfig `json:"config"`
	Placeholders []string          `json:"placeholders"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	fc, _, err := config.ReadFile(s.opts.Dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, config.ErrCodeInvalid, err)
		return
	}
	writeJSON(w, http.StatusOK, configView{
		Config:       config.WithDefaults(fc, s.opts.Clock.Now()),
		Placeholders: config.Placeholders,
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	fc, err := decodeConfig(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, config.ErrCodeInvalid, err)
		return
	}
	if err := config.Save(s.opts.Fs, s.opts.Dir, fc); err != nil {
		writeConfigError(w, err)
		return
	}
	log.Info().Str("path", filepath.Join(s.opts.Dir, config.FileName)).Msg("配置已保存")
	writeJSON(w, http.StatusOK, configView{
		Config:       config.WithDefaults(fc, s.opts.Clock.Now()),
		Placeholders: config.Placeholders,
	})
}

type categoryView struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	out := make([]categoryView, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, categoryView{Slug: c.Slug, Label: c.Label})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var fc *config.FileConfig
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, config.ErrCodeInvalid, err)
		return
	}
	if strings.TrimSpace(string(body)) != "" {
		c, err := decodeConfig(strings.NewReader(string(body)))
		if err != nil {
			writeError(w, http.StatusBadRequest, config.ErrCodeInvalid, err)
			return
		}
		fc = &c
	}

	id, err := s.StartRun(fc)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.list()
	out := make([]RunInfo, 0, len(runs))
	for _, rs := range runs {
		out = append(out, rs.info(false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", errors.New("运行不存在"))
		return
	}
	writeJSON(w, http.StatusOK, rs.info(true))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", errors.New("运行不存在"))
		return
	}
	rs.cancel()
	writeJSON(w, http.StatusAccepted, rs.info(false))
}

// handleEvents 以 SSE 推送运行事件：先回放已缓冲的事件，再跟随新事件；
// 空闲时每 KeepAlive 发一行注释；终止事件发出且运行结束后关闭连接。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", errors.New("运行不存在"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "sse_unsupported", errors.New("不支持流式响应"))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := s.opts.Clock.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	next := 0
	for {
		evs, changed, finished := rs.since(next)
		for _, ev := range evs {
			b, err := json.Marshal(ev)
			if err != nil {
				log.Warn().Err(err).Str("run_id", rs.id).Msg("事件序列化失败")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
		}
		next += len(evs)
		if len(evs) > 0 {
			flusher.Flush()
		}
		if finished && len(evs) == 0 {
			return
		}
		if finished {
			continue
		}

		select {
		case <-changed:
		case <-ticker.Chan():
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleExports(w http.ResponseWriter, _ *http.Request) {
	files, err := scan.ListExports(s.opts.Fs, s.outDir())
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrCodeIOFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	p, err := scan.DownloadPath(s.outDir(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "not_allowed", err)
		return
	}
	f, err := s.opts.Fs.Open(p)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", errors.New("文件不存在"))
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", errors.New("文件不存在"))
		return
	}

	name := filepath.Base(p)
	ctype := "text/csv; charset=utf-8"
	if strings.EqualFold(filepath.Ext(name), ".ics") {
		ctype = "text/calendar; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (s *Server) outDir() string { return filepath.Join(s.opts.Dir, "out") }

func decodeConfig(r io.Reader) (config.FileConfig, error) {
	var fc config.FileConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return config.FileConfig{}, fmt.Errorf("请求体不是合法的配置 JSON：%w", err)
	}
	return fc, nil
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeConfigError(w http.ResponseWriter, err error) {
	if code := config.Code(err); code != "" {
		writeError(w, http.StatusBadRequest, code, err)
		return
	}
	writeError(w, http.StatusInternalServerError, domain.ErrCodeIOFailed, err)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorBody{Code: code, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("写入响应失败")
	}
}
