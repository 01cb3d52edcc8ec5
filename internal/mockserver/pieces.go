package mockserver

import "unicode"

// Pieces 把文本拆成逐词发送的片段，每个片段带上前导空白，拼接后与原文相同
func Pieces(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	inWord := false

	for i, r := range runes {
		space := unicode.IsSpace(r)
		if space && inWord {
			out = append(out, string(runes[start:i]))
			start = i
			inWord = false
		} else if !space {
			inWord = true
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
