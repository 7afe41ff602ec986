package export

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/John-Robertt/BRCal/internal/domain"
	"github.com/John-Robertt/BRCal/internal/infra/fsx"
)

// Writer 把导出结果原子写入 Dir（通常是 <dir>/out）。
type Writer struct {
	Fs  afero.Fs
	Dir string
}

func NewWriter(fs afero.Fs, dir string) Writer {
	return Writer{Fs: fs, Dir: filepath.Clean(dir)}
}

// CalendarItems 选出要写进日历的条目：默认只取 canonical；keepDuplicates=true 时保留全部。
func CalendarItems(items []domain.Item, keepDuplicates bool) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if !keepDuplicates && !it.Canonical {
			continue
		}
		out = append(out, it)
	}
	return out
}

// WriteICS 写入 name（.ics），返回事件数。
func (w Writer) WriteICS(name string, items []domain.Item, now time.Time) (int, error) {
	b, n, err := EncodeICS(items, now)
	if err != nil {
		return 0, err
	}
	if err := fsx.WriteFileAtomic(w.Fs, w.Dir, name, b); err != nil {
		return 0, err
	}
	return n, nil
}

func (w Writer) WriteCSV(name string, items []domain.Item) error {
	b, err := EncodeCSV(items)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(w.Fs, w.Dir, name, b)
}

// WriteReport 写入 run 报告（会先 Finalize）。
func (w Writer) WriteReport(name string, rep domain.RunReport) error {
	rep.Finalize()
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(w.Fs, w.Dir, name, b)
}
