package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/John-Robertt/BRCal/internal/domain"
)

const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// maxFinishedRuns 是保留的已结束运行数；更早的会被淘汰。
const maxFinishedRuns = 20

// runState 是一次 web 触发的运行：缓冲全部事件，供 SSE 客户端回放后继续跟随。
// 同时实现 run.Observer。
type runState struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc

	mu       sync.Mutex
	status   string
	events   []domain.Event
	notify   chan struct{} // 每次有新事件或结束时关闭并替换
	report   *domain.RunReport
	errMsg   string
	finished time.Time
}

func newRunState(id string, startedAt time.Time, cancel context.CancelFunc) *runState {
	return &runState{
		id:        id,
		startedAt: startedAt,
		cancel:    cancel,
		status:    StatusRunning,
		notify:    make(chan struct{}),
	}
}

func (rs *runState) Report(ev domain.Event) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.events = append(rs.events, ev)
	close(rs.notify)
	rs.notify = make(chan struct{})
}

// since 返回下标 from 之后的事件、下一次变化的通知 channel，以及运行是否已结束。
func (rs *runState) since(from int) ([]domain.Event, <-chan struct{}, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var evs []domain.Event
	if from < len(rs.events) {
		evs = append(evs, rs.events[from:]...)
	}
	return evs, rs.notify, rs.status != StatusRunning
}

// finish 记录运行结果；若流程没有发出终止事件，这里补一条 error 事件。
func (rs *runState) finish(rep domain.RunReport, err error, now time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch {
	case err == nil:
		rs.status = StatusDone
	case errors.Is(err, context.Canceled):
		rs.status = StatusCanceled
	default:
		rs.status = StatusFailed
	}
	if err != nil {
		rs.errMsg = err.Error()
	}
	if !rep.StartedAt.IsZero() {
		rs.report = &rep
	}
	rs.finished = now

	if n := len(rs.events); n == 0 || !terminal(rs.events[n-1].Kind) {
		ev := domain.Event{Kind: domain.EventDone, Level: domain.LevelSuccess, Text: "完成", Percent: 100, At: now.UTC()}
		if err != nil {
			ev = domain.Event{Kind: domain.EventError, Level: domain.LevelError, Text: err.Error(), At: now.UTC()}
		}
		rs.events = append(rs.events, ev)
	}
	close(rs.notify)
	rs.notify = make(chan struct{})
}

func terminal(kind string) bool { return kind == domain.EventDone || kind == domain.EventError }

// RunInfo 是 /api/runs 返回的运行状态。
type RunInfo struct {
	ID         string            `json:"run_id"`
	Status     string            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Events     int               `json:"events"`
	Error      string            `json:"error,omitempty"`
	Report     *domain.RunReport `json:"report,omitempty"`
}

func (rs *runState) info(withReport bool) RunInfo {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ri := RunInfo{
		ID:        rs.id,
		Status:    rs.status,
		StartedAt: rs.startedAt.UTC(),
		Events:    len(rs.events),
		Error:     rs.errMsg,
	}
	if !rs.finished.IsZero() {
		t := rs.finished.UTC()
		ri.FinishedAt = &t
	}
	if withReport {
		ri.Report = rs.report
	}
	return ri
}

// runRegistry 持有本进程内的所有运行；由 Server 拥有。
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*runState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: map[string]*runState{}}
}

// add 注册运行；id 冲突时返回 false。
func (r *runRegistry) add(rs *runState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.runs[rs.id]; dup {
		return false
	}
	r.runs[rs.id] = rs
	r.evictLocked()
	return true
}

func (r *runRegistry) get(id string) (*runState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.runs[id]
	return rs, ok
}

// list 按开始时间倒序返回。
func (r *runRegistry) list() []*runState {
	r.mu.Lock()
	out := make([]*runState, 0, len(r.runs))
	for _, rs := range r.runs {
		out = append(out, rs)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].startedAt.Equal(out[j].startedAt) {
			return out[i].startedAt.After(out[j].startedAt)
		}
		return out[i].id < out[j].id
	})
	return out
}

// cancelAll 取消所有仍在运行的任务。
func (r *runRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rs := range r.runs {
		rs.cancel()
	}
}

func (r *runRegistry) evictLocked() {
	type finishedRun struct {
		id string
		at time.Time
	}
	var done []finishedRun
	for _, rs := range r.runs {
		rs.mu.Lock()
		if rs.status != StatusRunning {
			done = append(done, finishedRun{id: rs.id, at: rs.finished})
		}
		rs.mu.Unlock()
	}
	if len(done) <= maxFinishedRuns {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })
	for _, f := range done[:len(done)-maxFinishedRuns] {
		delete(r.runs, f.id)
	}
}
