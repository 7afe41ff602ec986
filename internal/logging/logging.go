package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// FileName 是日志文件名（位于工作目录 <dir> 下）。
const FileName = "brcal.log"

// Init 配置全局 zerolog logger。
//
// - 始终写入 <dir>/brcal.log（1MB 轮转，保留 2 份）
// - verbose=true 时额外以 console 格式写 stderr，并打开 debug 级别
// - extra 用于测试或 server 追加自己的 writer
//
// 返回的 Closer 关闭日志文件；调用方应在退出前关闭。
func Init(dir string, verbose bool, extra ...io.Writer) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    1,
		MaxBackups: 2,
	}
	writers := []io.Writer{file}
	if verbose {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	writers = append(writers, extra...)

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log.Logger = log.Output(io.MultiWriter(writers...)).
		Level(level(verbose)).
		With().Timestamp().Caller().Logger()

	return file, nil
}

func level(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
