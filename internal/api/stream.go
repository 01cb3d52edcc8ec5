package api

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FramingMode 流式响应的分帧方式，每个部署只使用其中一种
type FramingMode string

const (
	// FramingLines 按行解析 "data:" 帧，"[DONE]" 表示结束
	FramingLines FramingMode = "lines"
	// FramingWholeBody 整个响应体作为一次增量
	FramingWholeBody FramingMode = "whole"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// ParseFramingMode 解析配置中的 stream_mode，空字符串为 lines
func ParseFramingMode(s string) (FramingMode, error) {
	switch FramingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FramingLines:
		return FramingLines, nil
	case FramingWholeBody:
		return FramingWholeBody, nil
	default:
		return "", fmt.Errorf("未知的 stream_mode: %q", s)
	}
}

// DeltaFunc 每收到一段增量调用一次，delta 为新片段，full 为累计文本
type DeltaFunc func(delta, full string)

// Demux 把流式响应体拆成有序的文本增量，返回最终累计文本
// 读取中途出错时返回 *StreamError，其中保留已累计的内容
func Demux(r io.Reader, mode FramingMode, onDelta DeltaFunc) (string, error) {
	if onDelta == nil {
		onDelta = func(string, string) {}
	}
	if mode == FramingWholeBody {
		return demuxWholeBody(r, onDelta)
	}
	return demuxLines(r, onDelta)
}

func demuxLines(r io.Reader, onDelta DeltaFunc) (string, error) {
	reader := bufio.NewReader(r)
	var acc strings.Builder

	for {
		// ReadString 会把不完整的行留在缓冲区里，和下一次读取拼接
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			// 出错时残留的半行不可信，丢弃
			return acc.String(), &StreamError{Partial: acc.String(), Err: err}
		}
		if line != "" {
			if payload, ok := parseDataLine(line); ok {
				if payload == doneSentinel {
					return acc.String(), nil
				}
				acc.WriteString(payload)
				onDelta(payload, acc.String())
			}
		}

		if err != nil {
			return acc.String(), nil
		}
	}
}

// parseDataLine 去掉行尾换行和一个 \r，取出 "data:" 之后的内容（最多去掉一个前导空格）
func parseDataLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := line[len(dataPrefix):]
	return strings.TrimPrefix(payload, " "), true
}

func demuxWholeBody(r io.Reader, onDelta DeltaFunc) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return string(data), &StreamError{Partial: string(data), Err: err}
	}
	text := string(data)
	onDelta(text, text)
	return text, nil
}
