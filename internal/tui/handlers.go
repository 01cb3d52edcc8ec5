package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/chat"
	"github.com/Zacy-Sokach/ChatTester/internal/config"
	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/export"
)

// humanHandoff 快捷操作发送的文本
const humanHandoff = "Talk to a human"

// submit 处理回车：斜杠命令或普通消息
func (m *Model) submit() tea.Cmd {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return nil
	}

	if cmd := m.parser.Parse(input); cmd != nil {
		m.textarea.Reset()
		return m.runCommand(cmd)
	}
	return m.send(input)
}

// send 发送消息；忙碌时保留草稿，没有会话时交给控制器写入错误状态
func (m *Model) send(text string) tea.Cmd {
	if m.chat.Status.Get().Busy {
		m.notice = "still sending, wait for the reply or press esc"
		return nil
	}
	m.notice = ""

	ctx := m.ctx
	ctrl := m.chat.Controller
	return func() tea.Msg {
		op, err := ctrl.Send(ctx, text)
		return SendDoneMsg{Op: op, Err: err}
	}
}

// regenerate 重新生成第 n 条（从 1 开始）助手消息，n 为 0 时取最后一条
func (m *Model) regenerate(n int) tea.Cmd {
	if m.chat.Status.Get().Busy {
		m.notice = "still sending, wait for the reply or press esc"
		return nil
	}

	index, ok := m.assistantIndex(n)
	if !ok {
		return nil
	}
	m.notice = ""

	ctx := m.ctx
	ctrl := m.chat.Controller
	return func() tea.Msg {
		op, err := ctrl.Regenerate(ctx, index)
		return SendDoneMsg{Op: op, Regenerate: true, Err: err}
	}
}

// assistantIndex 把界面序号换成日志下标，并确认是助手消息
func (m *Model) assistantIndex(n int) (int, bool) {
	if n == 0 {
		index, ok := m.chat.Log.LastAssistant()
		if !ok {
			m.notice = "no assistant reply yet"
		}
		return index, ok
	}

	rec, ok := m.chat.Log.At(n - 1)
	if !ok {
		m.notice = fmt.Sprintf("no message #%d", n)
		return 0, false
	}
	if rec.Role != chat.RoleAssistant {
		m.notice = fmt.Sprintf("message #%d is not an assistant reply", n)
		return 0, false
	}
	return n - 1, true
}

// runCommand 执行斜杠命令
func (m *Model) runCommand(cmd *Command) tea.Cmd {
	m.notice = ""

	switch cmd.Type {
	case CommandTypeUnknown:
		m.notice = cmd.Problem

	case CommandTypeNewSession:
		return m.sessionCmd("new")

	case CommandTypeDeleteSession:
		return m.sessionCmd("delete")

	case CommandTypeResetUI:
		m.chat.Sessions.ResetUI()
		m.notice = "messages cleared"

	case CommandTypeRegenerate:
		return m.regenerate(cmd.Index)

	case CommandTypeThumbsUp:
		return m.feedback(cmd.Index, chat.ThumbsUp)

	case CommandTypeThumbsDown:
		return m.feedback(cmd.Index, chat.ThumbsDown)

	case CommandTypeCopy:
		m.copyMessage(cmd.Index)

	case CommandTypeReveal:
		ms, err := strconv.Atoi(strings.TrimSuffix(cmd.Arg, "ms"))
		if err != nil || ms <= 0 {
			m.notice = "usage: /reveal <ms>"
			return nil
		}
		d := m.reveal.SetInterval(time.Duration(ms) * time.Millisecond)
		m.cfg.RevealMS = int(d / time.Millisecond)
		m.notice = fmt.Sprintf("reveal interval %dms", m.cfg.RevealMS)

	case CommandTypeLevel:
		level, err := console.ParseLevel(cmd.Arg)
		if err != nil {
			m.notice = err.Error()
			return nil
		}
		m.consoleLevel = level
		m.showConsole = true

	case CommandTypeClearLog:
		m.buffer.Clear()

	case CommandTypeTheme:
		return m.setTheme(cmd.Arg)

	case CommandTypeExport:
		return m.export(cmd.Arg)

	case CommandTypeHuman:
		return m.send(humanHandoff)

	case CommandTypeHelp:
		m.notice = m.parser.Help()
	}

	m.refresh()
	return nil
}

// sessionCmd 新建或删除会话
func (m *Model) sessionCmd(action string) tea.Cmd {
	if m.chat.Status.Get().Busy {
		m.notice = "still sending, wait for the reply or press esc"
		return nil
	}

	ctx := m.ctx
	sessions := m.chat.Sessions
	return func() tea.Msg {
		var err error
		switch action {
		case "new":
			_, err = sessions.New(ctx)
		case "delete":
			err = sessions.Delete(ctx)
		}
		return SessionDoneMsg{Action: action, Err: err}
	}
}

// feedback 对第 n 条助手消息提交反馈
func (m *Model) feedback(n int, value chat.FeedbackValue) tea.Cmd {
	index, ok := m.assistantIndex(n)
	if !ok {
		return nil
	}
	rec, _ := m.chat.Log.At(index)

	ctx := m.ctx
	ledger := m.chat.Feedback
	return func() tea.Msg {
		err := ledger.Submit(ctx, rec.MessageID, value)
		return FeedbackDoneMsg{MessageID: rec.MessageID, Value: value, Err: err}
	}
}

// copyMessage 把消息全文写进控制台
func (m *Model) copyMessage(n int) {
	var rec chat.Record
	var ok bool
	if n == 0 {
		var index int
		if index, ok = m.chat.Log.LastAssistant(); ok {
			rec, ok = m.chat.Log.At(index)
		}
	} else {
		rec, ok = m.chat.Log.At(n - 1)
	}
	if !ok {
		m.notice = "nothing to copy"
		return
	}

	m.buffer.Push(console.LevelLog, rec.Text)
	m.showConsole = true
	m.notice = "message copied to the console"
}

// setTheme 切换主题并保存到配置文件
func (m *Model) setTheme(id string) tea.Cmd {
	theme := config.NormalizeTheme(id)
	if theme != strings.ToLower(strings.TrimSpace(id)) {
		m.notice = fmt.Sprintf("unknown theme %q, using %s", id, theme)
	} else {
		m.notice = "theme " + theme
	}

	m.styles = NewStyles(theme)
	m.cfg.Theme = theme
	m.refresh()

	snapshot := *m.cfg
	return func() tea.Msg {
		return ConfigSavedMsg{Err: config.SaveConfig(&snapshot)}
	}
}

// export 导出当前会话
func (m *Model) export(path string) tea.Cmd {
	sess, _ := m.chat.Sessions.Current()
	records := m.chat.Log.Snapshot()

	fb := make(map[string]chat.FeedbackValue)
	for _, rec := range records {
		if rec.MessageID == "" {
			continue
		}
		if v, ok := m.chat.Feedback.Get(rec.MessageID); ok {
			fb[rec.MessageID] = v
		}
	}

	t := export.Transcript{
		SessionID:  sess.SessionID,
		CreatedAt:  sess.CreatedAt,
		BrandName:  m.cfg.BrandName,
		BotName:    m.cfg.BotName,
		Messages:   records,
		Feedback:   fb,
		ExportedAt: time.Now(),
	}

	logger := m.logger
	return func() tea.Msg {
		err := export.WriteFile(path, t)
		if err != nil {
			logger.Error("export_failed", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("export_written", zap.String("path", path), zap.Int("messages", len(t.Messages)))
		}
		return ExportDoneMsg{Path: path, Err: err}
	}
}
