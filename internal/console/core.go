package console

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ringCore 把 zap 日志写进环形缓冲区的 zapcore.Core 实现
type ringCore struct {
	zapcore.LevelEnabler
	buf    *Buffer
	fields []zapcore.Field
}

// NewCore 创建写入 buf 的 zap core
func NewCore(buf *Buffer, enab zapcore.LevelEnabler) zapcore.Core {
	return &ringCore{LevelEnabler: enab, buf: buf}
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &ringCore{
		LevelEnabler: c.LevelEnabler,
		buf:          c.buf,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.buf.Push(levelOf(ent.Level), formatEntry(ent, c.fields, fields))
	return nil
}

func (c *ringCore) Sync() error {
	return nil
}

// levelOf zap 级别映射到控制台级别
func levelOf(l zapcore.Level) Level {
	switch {
	case l >= zapcore.ErrorLevel:
		return LevelError
	case l == zapcore.WarnLevel:
		return LevelWarn
	case l == zapcore.InfoLevel:
		return LevelInfo
	default:
		return LevelLog
	}
}

// formatEntry 渲染为 "message key=value ..."，键按字母排序
func formatEntry(ent zapcore.Entry, groups ...[]zapcore.Field) string {
	enc := zapcore.NewMapObjectEncoder()
	for _, fields := range groups {
		for _, f := range fields {
			f.AddTo(enc)
		}
	}

	var sb strings.Builder
	if ent.LoggerName != "" {
		sb.WriteString("[")
		sb.WriteString(ent.LoggerName)
		sb.WriteString("] ")
	}
	sb.WriteString(ent.Message)

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, enc.Fields[k])
	}
	return sb.String()
}
