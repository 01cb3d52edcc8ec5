package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Zacy-Sokach/ChatTester/internal/config"
)

// palette 一个主题的配色
type palette struct {
	accent  lipgloss.Color
	user    lipgloss.Color
	bot     lipgloss.Color
	muted   lipgloss.Color
	errorFg lipgloss.Color
	warn    lipgloss.Color
	ok      lipgloss.Color
	border  lipgloss.Color
}

var palettes = map[string]palette{
	"classic": {
		accent: "12", user: "10", bot: "14", muted: "8",
		errorFg: "9", warn: "11", ok: "10", border: "8",
	},
	"midnight": {
		accent: "#BD93F9", user: "#50FA7B", bot: "#8BE9FD", muted: "#6272A4",
		errorFg: "#FF5555", warn: "#F1FA8C", ok: "#50FA7B", border: "#44475A",
	},
	"paper": {
		accent: "#1F4E79", user: "#2E7D32", bot: "#37474F", muted: "#9E9E9E",
		errorFg: "#C62828", warn: "#EF6C00", ok: "#2E7D32", border: "#BDBDBD",
	},
}

// Styles 界面使用的全部样式
type Styles struct {
	Theme     string
	Header    lipgloss.Style
	Pill      lipgloss.Style
	PillOff   lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Notice    lipgloss.Style
	Busy      lipgloss.Style
	Panel     lipgloss.Style
	PanelKey  lipgloss.Style
	Help      lipgloss.Style
	Levels    map[string]lipgloss.Style
}

// NewStyles 根据主题 ID 生成样式，未知主题使用 classic
func NewStyles(theme string) Styles {
	theme = config.NormalizeTheme(theme)
	p := palettes[theme]

	return Styles{
		Theme:     theme,
		Header:    lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		Pill:      lipgloss.NewStyle().Foreground(p.ok),
		PillOff:   lipgloss.NewStyle().Foreground(p.muted),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(p.user),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(p.bot),
		Muted:     lipgloss.NewStyle().Foreground(p.muted),
		Error:     lipgloss.NewStyle().Foreground(p.errorFg),
		Notice:    lipgloss.NewStyle().Foreground(p.accent),
		Busy:      lipgloss.NewStyle().Foreground(p.warn),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.border).
			Padding(0, 1),
		PanelKey: lipgloss.NewStyle().Foreground(p.muted),
		Help:     lipgloss.NewStyle().Foreground(p.muted),
		Levels: map[string]lipgloss.Style{
			"log":   lipgloss.NewStyle().Foreground(p.muted),
			"info":  lipgloss.NewStyle().Foreground(p.accent),
			"warn":  lipgloss.NewStyle().Foreground(p.warn),
			"error": lipgloss.NewStyle().Foreground(p.errorFg),
		},
	}
}
