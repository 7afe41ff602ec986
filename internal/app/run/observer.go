package run

import (
	"sync"

	"github.com/John-Robertt/BRCal/internal/domain"
)

// Observer 用于把运行进度从核心流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - Report 不应阻塞；server 侧的实现只做缓冲 + 通知
type Observer interface {
	Report(ev domain.Event)
}

// ObserverFunc 把普通函数适配为 Observer。
type ObserverFunc func(ev domain.Event)

func (f ObserverFunc) Report(ev domain.Event) { f(ev) }

// Recorder 把事件按顺序记录下来，可并发使用。
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Report(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

type nopObserver struct{}

func (nopObserver) Report(domain.Event) {}

// multiObserver 依次转发给多个 Observer。
type multiObserver []Observer

func (m multiObserver) Report(ev domain.Event) {
	for _, o := range m {
		o.Report(ev)
	}
}

// Tee 把事件同时发给多个 Observer（nil 会被忽略）。
func Tee(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	default:
		return out
	}
}
