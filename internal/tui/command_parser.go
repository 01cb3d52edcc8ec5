package tui

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// CommandType 命令类型
type CommandType int

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeNewSession
	CommandTypeDeleteSession
	CommandTypeResetUI
	CommandTypeRegenerate
	CommandTypeThumbsUp
	CommandTypeThumbsDown
	CommandTypeCopy
	CommandTypeReveal
	CommandTypeLevel
	CommandTypeClearLog
	CommandTypeTheme
	CommandTypeExport
	CommandTypeHuman
	CommandTypeHelp
)

// Command 解析后的命令
// Index 是界面上显示的消息序号（从 1 开始），0 表示未指定
type Command struct {
	Type    CommandType
	Raw     string
	Name    string
	Arg     string
	Index   int
	Problem string
}

// commandDef 一个斜杠命令的定义
type commandDef struct {
	typ     CommandType
	names   []string
	pattern *regexp.Regexp
	usage   string
	summary string
}

// CommandParser 斜杠命令解析器
type CommandParser struct {
	defs []commandDef
}

var (
	noArgPattern    = regexp.MustCompile(`^$`)
	indexArgPattern = regexp.MustCompile(`^(\d+)?$`)
	anyArgPattern   = regexp.MustCompile(`^(\S.*)$`)
	slashPattern    = regexp.MustCompile(`^/([A-Za-z]+)(?:\s+(.*))?$`)
)

// NewCommandParser 创建新的命令解析器
func NewCommandParser() *CommandParser {
	return &CommandParser{defs: []commandDef{
		{CommandTypeNewSession, []string{"new"}, noArgPattern, "/new", "start a new session"},
		{CommandTypeDeleteSession, []string{"delete"}, noArgPattern, "/delete", "delete the current session"},
		{CommandTypeResetUI, []string{"reset"}, noArgPattern, "/reset", "clear messages, keep the session"},
		{CommandTypeRegenerate, []string{"regen", "regenerate"}, indexArgPattern, "/regen [n]", "regenerate an assistant reply"},
		{CommandTypeThumbsUp, []string{"up"}, indexArgPattern, "/up [n]", "thumbs up an assistant reply"},
		{CommandTypeThumbsDown, []string{"down"}, indexArgPattern, "/down [n]", "thumbs down an assistant reply"},
		{CommandTypeCopy, []string{"copy"}, indexArgPattern, "/copy [n]", "print a message to the console"},
		{CommandTypeReveal, []string{"reveal"}, anyArgPattern, "/reveal <ms>", "set the reveal interval (80..420)"},
		{CommandTypeLevel, []string{"level"}, anyArgPattern, "/level <all|log|info|warn|error>", "filter the console"},
		{CommandTypeClearLog, []string{"clearlog"}, noArgPattern, "/clearlog", "clear the console"},
		{CommandTypeTheme, []string{"theme"}, anyArgPattern, "/theme <classic|midnight|paper>", "switch theme"},
		{CommandTypeExport, []string{"export"}, anyArgPattern, "/export <file.md|file.html>", "export the transcript"},
		{CommandTypeHuman, []string{"human"}, noArgPattern, "/human", "send \"Talk to a human\""},
		{CommandTypeHelp, []string{"help"}, noArgPattern, "/help", "show commands"},
	}}
}

// Parse 解析输入，非斜杠输入返回 nil
// 未知命令或参数不合法时返回 Type 为 CommandTypeUnknown 且带 Problem 的命令
func (p *CommandParser) Parse(input string) *Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	matches := slashPattern.FindStringSubmatch(input)
	if matches == nil {
		return &Command{Type: CommandTypeUnknown, Raw: input, Problem: "unknown command " + input}
	}

	name := strings.ToLower(matches[1])
	arg := strings.TrimSpace(matches[2])

	for _, def := range p.defs {
		if !slices.Contains(def.names, name) {
			continue
		}

		cmd := &Command{Type: def.typ, Raw: input, Name: name}
		argMatches := def.pattern.FindStringSubmatch(arg)
		if argMatches == nil {
			return &Command{Type: CommandTypeUnknown, Raw: input, Name: name, Problem: "usage: " + def.usage}
		}
		if def.pattern == indexArgPattern && argMatches[1] != "" {
			n, err := strconv.Atoi(argMatches[1])
			if err != nil || n < 1 {
				return &Command{Type: CommandTypeUnknown, Raw: input, Name: name, Problem: "usage: " + def.usage}
			}
			cmd.Index = n
		}
		if def.pattern == anyArgPattern {
			cmd.Arg = argMatches[1]
		}
		return cmd
	}

	return &Command{Type: CommandTypeUnknown, Raw: input, Name: name, Problem: "unknown command /" + name + " (try /help)"}
}

// IsCommand 检查字符串是否为斜杠命令
func (p *CommandParser) IsCommand(input string) bool {
	return p.Parse(input) != nil
}

// Help 命令列表
func (p *CommandParser) Help() string {
	var sb strings.Builder
	for i, def := range p.defs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(def.usage)
		sb.WriteString(" - ")
		sb.WriteString(def.summary)
	}
	return sb.String()
}
