// Package export 把当前会话的消息导出为 Markdown 或 HTML
package export

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"

	"github.com/Zacy-Sokach/ChatTester/internal/chat"
)

// Transcript 一次导出的内容
type Transcript struct {
	SessionID  string
	CreatedAt  string
	BrandName  string
	BotName    string
	Messages   []chat.Record
	Feedback   map[string]chat.FeedbackValue
	ExportedAt time.Time
}

// Markdown 渲染为 Markdown
func Markdown(t Transcript) []byte {
	var sb strings.Builder

	title := t.BrandName
	if title == "" {
		title = "ChatTester"
	}
	fmt.Fprintf(&sb, "# %s transcript\n\n", title)

	sessionID := t.SessionID
	if sessionID == "" {
		sessionID = "—"
	}
	fmt.Fprintf(&sb, "- **Session**: `%s`\n", sessionID)
	if t.CreatedAt != "" {
		fmt.Fprintf(&sb, "- **Created**: %s\n", t.CreatedAt)
	}
	if !t.ExportedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Exported**: %s\n", t.ExportedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(t.Messages))

	for i, m := range t.Messages {
		name := "You"
		if m.Role == chat.RoleAssistant {
			name = t.BotName
			if name == "" {
				name = "Assistant"
			}
		}
		fmt.Fprintf(&sb, "### %d. %s", i+1, name)
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&sb, " · %s", m.Timestamp.Format("15:04:05"))
		}
		sb.WriteString("\n\n")

		text := strings.TrimSpace(m.Text)
		if text == "" {
			text = "_(empty)_"
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")

		if m.MessageID != "" || m.TraceID != "" {
			var meta []string
			if m.MessageID != "" {
				meta = append(meta, fmt.Sprintf("message_id `%s`", m.MessageID))
			}
			if m.TraceID != "" {
				meta = append(meta, fmt.Sprintf("trace_id `%s`", m.TraceID))
			}
			if v, ok := t.Feedback[m.MessageID]; ok {
				meta = append(meta, fmt.Sprintf("feedback `%s`", v))
			}
			fmt.Fprintf(&sb, "> %s\n\n", strings.Join(meta, " · "))
		}
	}
	return []byte(sb.String())
}

// HTML 把 Markdown 渲染为独立的 HTML 页面
func HTML(t Transcript) []byte {
	body := blackfriday.Run(Markdown(t), blackfriday.WithExtensions(blackfriday.CommonExtensions))

	title := t.BrandName
	if title == "" {
		title = "ChatTester"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s transcript</title>\n", html.EscapeString(title))
	sb.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}" +
		"blockquote{color:#666;border-left:3px solid #ccc;margin:0;padding-left:1rem}</style>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.Write(body)
	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String())
}

// WriteFile 按扩展名选择格式写入文件：.html/.htm 为 HTML，其余为 Markdown
func WriteFile(path string, t Transcript) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = HTML(t)
	default:
		data = Markdown(t)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建导出目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	return nil
}
