package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Zacy-Sokach/ChatTester/internal/chat"
	"github.com/Zacy-Sokach/ChatTester/internal/config"
	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/reveal"
	"github.com/Zacy-Sokach/ChatTester/internal/utils"
)

// refreshEvery 流式输出期间两次重绘的最小间隔
const refreshEvery = 50 * time.Millisecond

const (
	inspectorWidth = 38
	consoleLines   = 8
)

// Options 构建 Model 需要的组件
type Options struct {
	Config   *config.Config
	Chat     *chat.Console
	Reveal   *reveal.Scheduler
	Buffer   *console.Buffer
	Logger   *zap.Logger
	Username string
}

// Model 聊天测试终端的 Bubble Tea 模型
type Model struct {
	cfg      *config.Config
	chat     *chat.Console
	reveal   *reveal.Scheduler
	buffer   *console.Buffer
	logger   *zap.Logger
	username string

	parser   *CommandParser
	markdown *MarkdownRenderer
	styles   Styles
	bridge   *bridge

	limiter        *rate.Limiter
	refreshPending bool
	observed       map[uint64]string

	viewport viewport.Model
	textarea textarea.Model
	ready    bool
	width    int
	height   int

	showInspector bool
	showConsole   bool
	consoleLevel  console.Level
	notice        string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModel 创建模型并把控制器的清空输入框回调接到界面上
func NewModel(opts Options) *Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buf := opts.Buffer
	if buf == nil {
		buf = console.NewBuffer(cfg.ConsoleCapacity)
	}
	sched := opts.Reveal
	if sched == nil {
		sched = reveal.NewScheduler(opts.Chat.Bus, reveal.Options{
			Interval:  cfg.RevealInterval(),
			GroupSize: cfg.SentencesPerChunk,
		})
	}

	ta := textarea.New()
	ta.Placeholder = "Type a message"
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Model{
		cfg:          cfg,
		chat:         opts.Chat,
		reveal:       sched,
		buffer:       buf,
		logger:       logger.Named("tui"),
		username:     opts.Username,
		parser:       NewCommandParser(),
		markdown:     NewMarkdownRenderer(),
		styles:       NewStyles(cfg.Theme),
		bridge:       newBridge(opts.Chat.Bus, buf),
		limiter:      rate.NewLimiter(rate.Every(refreshEvery), 1),
		observed:     make(map[uint64]string),
		viewport:     vp,
		textarea:     ta,
		consoleLevel: console.LevelAll,
		ctx:          ctx,
		cancel:       cancel,
	}
	m.chat.Controller.ClearDraft = m.bridge.requestClearDraft
	m.refresh()
	return m
}

// Init 实现 tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.bridge.wait())
}

// Update 实现 tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.shutdown()
			return m, tea.Quit
		case tea.KeyEsc:
			m.cancelInFlight()
		case tea.KeyCtrlR:
			cmds = append(cmds, m.regenerate(0))
		case tea.KeyTab:
			// Ctrl+I 在终端里与 Tab 是同一个键
			m.showInspector = !m.showInspector
			m.refresh()
		case tea.KeyCtrlL:
			m.showConsole = !m.showConsole
		case tea.KeyEnter:
			cmds = append(cmds, m.submit())
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		default:
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		m.refresh()

	case ChangedMsg:
		if msg.ClearDraft {
			m.textarea.Reset()
		}
		cmds = append(cmds, m.scheduleRefresh(), m.bridge.wait())

	case RefreshMsg:
		m.refreshPending = false
		m.refresh()

	case SendDoneMsg:
		if msg.Err != nil {
			m.logger.Debug("send_returned_error", zap.Error(msg.Err))
		}
		if msg.Op == nil && msg.Err == nil && msg.Regenerate {
			m.notice = "nothing to regenerate: no user message before that reply"
		}
		m.refresh()

	case SessionDoneMsg:
		if msg.Err == nil {
			switch msg.Action {
			case "new":
				m.notice = "session started"
			case "delete":
				m.notice = "session deleted"
			}
		}
		m.refresh()

	case FeedbackDoneMsg:
		switch {
		case msg.Err == nil:
			m.notice = "feedback recorded: " + string(msg.Value)
		case errors.Is(msg.Err, chat.ErrFeedbackConflict):
			m.notice = "feedback already recorded for this message"
		}
		m.refresh()

	case ExportDoneMsg:
		if msg.Err != nil {
			m.notice = "export failed: " + msg.Err.Error()
		} else {
			m.notice = "exported to " + msg.Path
		}

	case ConfigSavedMsg:
		if msg.Err != nil {
			m.logger.Warn("config_save_failed", zap.Error(msg.Err))
		}
	}

	m.layout()
	return m, tea.Batch(cmds...)
}

// View 实现 tea.Model
func (m *Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	chatArea := m.viewport.View()
	if m.showInspector && m.width >= inspectorWidth+40 {
		chatArea = lipgloss.JoinHorizontal(lipgloss.Top, chatArea, m.inspectorView())
	}

	parts := []string{m.headerView(), chatArea}
	if line := m.statusView(); line != "" {
		parts = append(parts, line)
	}
	parts = append(parts, m.textarea.View())
	if m.showConsole {
		parts = append(parts, m.consoleView())
	}
	parts = append(parts, m.helpView())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// layout 根据窗口和面板开关计算各区域尺寸
func (m *Model) layout() {
	if !m.ready {
		return
	}

	chatWidth := m.width
	if m.showInspector && m.width >= inspectorWidth+40 {
		chatWidth = m.width - inspectorWidth
	}

	m.textarea.SetWidth(m.width)

	used := lipgloss.Height(m.headerView()) + m.textarea.Height() + lipgloss.Height(m.helpView())
	if line := m.statusView(); line != "" {
		used += lipgloss.Height(line)
	}
	if m.showConsole {
		used += lipgloss.Height(m.consoleView())
	}

	height := m.height - used
	if height < 3 {
		height = 3
	}

	if m.viewport.Width != chatWidth {
		m.viewport.Width = chatWidth
		m.refresh()
	}
	m.viewport.Height = height
}

// scheduleRefresh 按速率限制重绘，超出频率时延迟到下一个令牌
func (m *Model) scheduleRefresh() tea.Cmd {
	if m.refreshPending {
		return nil
	}
	if m.limiter.Allow() {
		m.refresh()
		return nil
	}
	m.refreshPending = true
	delay := m.limiter.Reserve().Delay()
	return tea.Tick(delay, func(time.Time) tea.Msg { return RefreshMsg{} })
}

// refresh 重新观察助手消息的显示进度并重绘聊天区域
func (m *Model) refresh() {
	records := m.chat.Log.Snapshot()
	m.observe(records)

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.chatView(records))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// observe 把助手消息的最新文本交给逐块显示调度器，并清理已不在日志里的记录
func (m *Model) observe(records []chat.Record) {
	keys := make([]uint64, 0, len(records))
	for _, rec := range records {
		if rec.Role != chat.RoleAssistant {
			continue
		}
		keys = append(keys, rec.Key)
		if text, ok := m.observed[rec.Key]; ok && text == rec.Text {
			continue
		}
		m.observed[rec.Key] = rec.Text
		m.reveal.Observe(rec.Key, rec.Text)
	}

	if len(keys) != len(m.observed) {
		live := make(map[uint64]string, len(keys))
		for _, k := range keys {
			live[k] = m.observed[k]
		}
		m.observed = live
		m.reveal.Retain(keys)
	}
}

// cancelInFlight 取消正在进行的请求，之后的请求使用新的上下文
func (m *Model) cancelInFlight() {
	if !m.chat.Status.Get().Busy {
		return
	}
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.notice = "cancelled"
}

// shutdown 退出前保存历史并停止后台任务
func (m *Model) shutdown() {
	m.cancel()
	m.bridge.close()
	m.reveal.Close()

	records := m.chat.Log.Snapshot()
	history := make([]utils.HistoryMessage, 0, len(records))
	for _, rec := range records {
		history = append(history, utils.HistoryMessage{
			Role:      string(rec.Role),
			Text:      rec.Text,
			Timestamp: rec.Timestamp,
			MessageID: rec.MessageID,
			TraceID:   rec.TraceID,
		})
	}
	if err := utils.SaveHistory(m.chat.Sessions.ID(), history); err != nil {
		m.logger.Warn("history_save_failed", zap.Error(err))
	}
}
