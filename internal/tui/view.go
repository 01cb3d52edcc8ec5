package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Zacy-Sokach/ChatTester/internal/chat"
)

// headerView 标题栏：品牌、在线状态、主题和用户
func (m *Model) headerView() string {
	title := m.styles.Header.Render(fmt.Sprintf("%s · %s", m.cfg.BrandName, m.cfg.BotName))

	pill := m.styles.PillOff.Render("● Offline")
	if m.chat.Sessions.ID() != "" {
		pill = m.styles.Pill.Render("● Online")
	}

	right := m.styles.Muted.Render("theme " + m.styles.Theme)
	if m.username != "" {
		right += m.styles.Muted.Render(" · " + m.username)
	}

	return title + "  " + pill + "  " + right
}

// chatView 渲染整个消息日志，空日志时显示欢迎语
func (m *Model) chatView(records []chat.Record) string {
	width := m.viewport.Width
	var sections []string

	if m.chat.Sessions.ID() == "" {
		sections = append(sections, m.styles.Busy.Render("Start a session with /new to enable messaging."))
	}

	if len(records) == 0 {
		sections = append(sections, m.greetingView())
		return strings.Join(sections, "\n\n")
	}

	busy := m.chat.Status.Get().Busy
	for i, rec := range records {
		if rec.Role == chat.RoleUser {
			sections = append(sections, m.userView(i, rec, width))
		} else {
			sections = append(sections, m.assistantView(i, rec, width, busy))
		}
	}
	return strings.Join(sections, "\n\n")
}

func (m *Model) greetingView() string {
	label := m.styles.BotLabel.Render(m.cfg.BotName)
	text := fmt.Sprintf("Hi there. I'm %s, %s's virtual assistant. If you want to talk to an agent at any time, type or tap \"Talk to a human.\"",
		m.cfg.BotName, m.cfg.BrandName)
	body := lipgloss.NewStyle().Width(max(m.viewport.Width-2, 20)).Render(text)

	out := label + "\n" + body
	if m.chat.Sessions.ID() != "" {
		out += "\n\n" + m.styles.Notice.Render("[ Talk to a human ]") + m.styles.Muted.Render("  /human")
	}
	return out
}

// userView 用户消息靠右显示
func (m *Model) userView(i int, rec chat.Record, width int) string {
	label := m.styles.UserLabel.Render("You") +
		m.styles.Muted.Render(fmt.Sprintf(" · %s · #%d", rec.Timestamp.Format("15:04"), i+1))

	bodyWidth := width * 3 / 4
	if bodyWidth < 20 {
		bodyWidth = 20
	}
	body := lipgloss.NewStyle().Width(max(min(lipgloss.Width(rec.Text), bodyWidth), 1)).Render(rec.Text)

	block := lipgloss.JoinVertical(lipgloss.Right, label, body)
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, block)
}

// assistantView 助手消息只显示调度器已放出的块
func (m *Model) assistantView(i int, rec chat.Record, width int, busy bool) string {
	header := m.styles.BotLabel.Render(m.cfg.BotName) +
		m.styles.Muted.Render(fmt.Sprintf(" · %s · #%d", rec.Timestamp.Format("15:04"), i+1))

	if rec.MessageID != "" {
		if v, ok := m.chat.Feedback.Get(rec.MessageID); ok {
			mark := "▲"
			if v == chat.ThumbsDown {
				mark = "▼"
			}
			header += "  " + m.styles.Notice.Render(mark)
		}
	}

	state, _ := m.reveal.Snapshot(rec.Key)
	shown := state.Shown()

	var body string
	switch {
	case rec.Text == "" && busy:
		body = m.styles.Muted.Render("…")
	case len(shown) == 0 && len(state.Chunks) > 0:
		body = m.styles.Muted.Render("…")
	default:
		body = m.markdown.Render(strings.Join(shown, "\n\n"), width-2, m.styles.Theme)
		if !state.Done() {
			body += "\n" + m.styles.Muted.Render("…")
		}
	}

	out := header + "\n" + body
	if rec.MessageID != "" || rec.TraceID != "" {
		out += "\n" + m.styles.Muted.Render(fmt.Sprintf("message %s · trace %s", orDash(rec.MessageID), orDash(rec.TraceID)))
	}
	return out
}

// statusView 发送中提示、错误提示和本地通知
func (m *Model) statusView() string {
	st := m.chat.Status.Get()
	var lines []string
	if st.Busy {
		lines = append(lines, m.styles.Busy.Render("Sending..."))
	}
	if st.Error != "" {
		lines = append(lines, m.styles.Error.Render("Error: "+st.Error))
	}
	if m.notice != "" {
		lines = append(lines, m.styles.Notice.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

// inspectorView 会话诊断信息
func (m *Model) inspectorView() string {
	sess, _ := m.chat.Sessions.Current()
	st := m.chat.Status.Get()

	rows := []struct{ k, v string }{
		{"session", orDash(sess.SessionID)},
		{"created", orDash(sess.CreatedAt)},
		{"trace", orDash(st.TraceID)},
		{"stream", m.cfg.StreamMode},
		{"reveal", fmt.Sprintf("%dms", m.reveal.Interval().Milliseconds())},
		{"base", m.cfg.BaseURL},
		{"feedback", fmt.Sprintf("%d", m.chat.Feedback.Len())},
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render("Inspector"))
	for _, row := range rows {
		sb.WriteString("\n")
		sb.WriteString(m.styles.PanelKey.Render(fmt.Sprintf("%-9s", row.k)))
		sb.WriteString(row.v)
	}
	return m.styles.Panel.Width(inspectorWidth - 4).Height(max(m.viewport.Height-2, 1)).Render(sb.String())
}

// consoleView 控制台面板，显示过滤后的最近几条
func (m *Model) consoleView() string {
	entries := m.buffer.Entries(m.consoleLevel)
	start := 0
	if len(entries) > consoleLines {
		start = len(entries) - consoleLines
	}

	title := m.styles.Header.Render("Console") +
		m.styles.Muted.Render(fmt.Sprintf(" · %s · %d entries", m.consoleLevel, len(entries)))

	lines := []string{title}
	lineWidth := max(m.width-6, 10)
	for _, e := range entries[start:] {
		style, ok := m.styles.Levels[string(e.Level)]
		if !ok {
			style = m.styles.Muted
		}
		text := strings.ReplaceAll(e.Text, "\n", " ")
		line := fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), e.Level, text)
		lines = append(lines, style.Render(truncate(line, lineWidth)))
	}
	if len(entries) == 0 {
		lines = append(lines, m.styles.Muted.Render("(empty)"))
	}

	return m.styles.Panel.Width(max(m.width-2, 10)).Render(strings.Join(lines, "\n"))
}

func (m *Model) helpView() string {
	return m.styles.Help.Render("enter send · esc cancel · ctrl+r regenerate · tab inspector · ctrl+l console · /help · ctrl+c quit")
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// truncate 按 rune 截断
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
