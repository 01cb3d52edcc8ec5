package reveal

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultGroupSize 每个块包含的句子数
const DefaultGroupSize = 1

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	blankLine      = regexp.MustCompile(`\n[\s\p{Z}\x{FEFF}]*\n`)
)

// Segment 把回复文本切分成逐块显示的片段
// 先按空行分段，段内在句末标点后跟空白且下一个字符为大写字母、数字、引号或左括号处断句，
// 每 groupSize 句合为一块
func Segment(text string, groupSize int) []string {
	if groupSize < 1 {
		groupSize = DefaultGroupSize
	}

	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = excessNewlines.ReplaceAllString(t, "\n\n")
	t = strings.TrimFunc(t, isSpace)
	if t == "" {
		return nil
	}

	var chunks []string
	for _, block := range blankLine.Split(t, -1) {
		sentences := splitSentences(block)
		for i := 0; i < len(sentences); i += groupSize {
			end := i + groupSize
			if end > len(sentences) {
				end = len(sentences)
			}
			if chunk := strings.Join(sentences[i:end], " "); chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}

// splitSentences 在 [.!?] + 空白 + 句首字符 处切分，空白本身被丢弃
func splitSentences(block string) []string {
	runes := []rune(block)
	var parts []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !isSentenceStart(runes[j]) {
			continue
		}
		parts = append(parts, string(runes[start:i+1]))
		start = j
		i = j - 1
	}
	return append(parts, string(runes[start:]))
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSentenceStart(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '"', r == '“', r == '‘', r == '(':
		return true
	}
	return false
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
