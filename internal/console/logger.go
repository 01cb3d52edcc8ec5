package console

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options 日志配置
type Options struct {
	// Level 最低记录级别: debug, info, warn, error
	Level string
	// File 额外写入的 JSON 日志文件，为空则只写控制台缓冲区
	File string
}

// ParseZapLevel 解析 zap 日志级别，空值为 debug（控制台需要看到全部请求细节）
func ParseZapLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.DebugLevel, fmt.Errorf("unknown log level %q", s)
}

// NewLogger 创建写入 buf 的 zap logger，返回的 closer 用于关闭日志文件
func NewLogger(buf *Buffer, opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseZapLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	cores := []zapcore.Core{NewCore(buf, level)}
	closer := func() error { return nil }

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
		closer = f.Close
	}

	return zap.New(zapcore.NewTee(cores...)), closer, nil
}
