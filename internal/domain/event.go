package domain

import "time"

const (
	EventStart    = "start"
	EventPhase    = "phase"
	EventLog      = "log"
	EventProgress = "progress"
	EventItem     = "item"
	EventDone     = "done"
	EventError    = "error"
)

const (
	LevelInfo    = "info"
	LevelWarn    = "warn"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Event 是运行过程中发出的一条观测（进度/日志/阶段）。
// CLI 用它渲染终端进度，server 把它原样推给 SSE 客户端。
type Event struct {
	Kind    string         `json:"type"`
	Level   string         `json:"level,omitempty"`
	Text    string         `json:"text,omitempty"`
	Percent int            `json:"percent,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	At      time.Time      `json:"at"`
}
