package scan

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// ExportFile 是 out/ 下的一个可下载导出文件。
type ExportFile struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"` // "ics" / "csv"
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ErrNotAllowed 表示请求的文件名不是允许下载的导出文件。
var ErrNotAllowed = errors.New("只允许下载 .ics / .csv 文件")

// ListExports 列出 outDir 下（不递归）的导出文件。
//
// 规则：
// - 只收 .ics / .csv（扩展名大小写不敏感）
// - 跳过 '.' 开头的文件（原子写入的临时文件）
// - outDir 不存在时返回空列表
// - 输出按修改时间倒序，其次按文件名
func ListExports(fs afero.Fs, outDir string) ([]ExportFile, error) {
	outDir = filepath.Clean(outDir)
	entries, err := afero.ReadDir(fs, outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ExportFile{}, nil
		}
		return nil, err
	}

	files := make([]ExportFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		kind, ok := exportKind(e.Name())
		if !ok {
			continue
		}
		files = append(files, ExportFile{
			Name:    e.Name(),
			Kind:    kind,
			Size:    e.Size(),
			ModTime: e.ModTime().UTC(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// DownloadPath 把用户给出的文件名限制为 outDir 下的导出文件（只取 base name，防止路径穿越）。
func DownloadPath(outDir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.TrimSpace(name)))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return "", ErrNotAllowed
	}
	if _, ok := exportKind(base); !ok {
		return "", ErrNotAllowed
	}
	return filepath.Join(filepath.Clean(outDir), base), nil
}

func exportKind(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ics":
		return "ics", true
	case ".csv":
		return "csv", true
	default:
		return "", false
	}
}
