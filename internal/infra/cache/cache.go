package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/John-Robertt/BRCal/internal/infra/fsx"
)

// Store 提供 <dir>/cache/pages/ 下的详情页 HTML 缓存读写。
//
// 文件名为 sha1(url) 的 hex，过期判断基于文件 mtime。
type Store struct {
	Fs   afero.Fs
	Root string // <dir>（工作目录）
}

func New(fs afero.Fs, root string) Store {
	return Store{
		Fs:   fs,
		Root: filepath.Clean(strings.TrimSpace(root)),
	}
}

// PagePath 返回页面缓存的路径。
func (s Store) PagePath(pageURL string) (string, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	return filepath.Join(s.dir(), Key(pageURL)+".html"), nil
}

// Key 返回 url 的缓存键（sha1 hex）。
func Key(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return hex.EncodeToString(sum[:])
}

// ReadPage 读取缓存；maxAge<=0 表示不过期。过期或不存在时 ok=false。
func (s Store) ReadPage(pageURL string, maxAge time.Duration, now time.Time) ([]byte, bool, error) {
	path, err := s.PagePath(pageURL)
	if err != nil {
		return nil, false, err
	}
	fi, err := s.Fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if maxAge > 0 && now.Sub(fi.ModTime()) > maxAge {
		return nil, false, nil
	}
	b, err := afero.ReadFile(s.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	return b, true, nil
}

func (s Store) WritePage(pageURL string, html []byte) error {
	if strings.TrimSpace(pageURL) == "" {
		return fmt.Errorf("url 不能为空")
	}
	return fsx.WriteFileAtomic(s.Fs, s.dir(), Key(pageURL)+".html", html)
}

func (s Store) dir() string {
	return filepath.Join(s.Root, "cache", "pages")
}
