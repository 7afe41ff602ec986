package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层可把它映射为 error_code=io_failed。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFileAtomic 在 dir 下原子写入 name（临时文件 + rename），目标已存在则覆盖。
//
// - 临时文件必须与目标文件在同目录，以保证 rename 的原子性
// - 目标是目录时返回 PathTypeConflictError，不做任何写入
func WriteFileAtomic(fs afero.Fs, dir, name string, data []byte) error {
	if fs == nil {
		return errors.New("fsx: nil fs")
	}
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	if fi, err := fs.Stat(dst); err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 前缀带 '.'，避免导出目录列表里出现半成品。
	tmp, err := afero.TempFile(fs, dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fs.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	// rename 原子替换到最终文件名；成功后 defer 里的 Remove 只会得到 not-exist。
	return fs.Rename(tmpName, dst)
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
