package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/chat"
	"github.com/Zacy-Sokach/ChatTester/internal/config"
	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
	"github.com/Zacy-Sokach/ChatTester/internal/reveal"
	"github.com/Zacy-Sokach/ChatTester/internal/tui"
	"github.com/Zacy-Sokach/ChatTester/internal/utils"
)

var (
	Version = "dev"
	commit  = "unknown"
)

// 全局参数
var (
	flagBaseURL    string
	flagStreamMode string
	flagLogLevel   string
	flagEnvFile    string
)

// rootCmd 不带子命令时启动交互式界面
var rootCmd = &cobra.Command{
	Use:   "chattester",
	Short: "Terminal console for testing a streaming chat backend",
	Long: `ChatTester talks to a chat backend over HTTP: it logs in, opens sessions,
streams assistant replies, reveals them sentence by sentence and records
thumbs up/down feedback. Run without a subcommand to start the TUI.`,
	Version:       fmt.Sprintf("%s (commit: %s)", Version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

// Execute 运行命令树
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "backend API base URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagStreamMode, "stream-mode", "", "stream framing: lines or whole")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before environment overrides")
}

// app 一次命令运行需要的公共组件
type app struct {
	cfg    *config.Config
	buffer *console.Buffer
	logger *zap.Logger
	closer func() error
	tokens *api.FileTokenStore
	client *api.Client
}

// setup 加载 .env 和配置，应用命令行覆盖，创建日志和 API 客户端
func setup() (*app, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagStreamMode != "" {
		cfg.StreamMode = flagStreamMode
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	buf := console.NewBuffer(cfg.ConsoleCapacity)
	logger, closer, err := console.NewLogger(buf, console.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	if _, err := utils.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("创建配置目录失败: %w", err)
	}
	tokenPath, err := utils.ConfigFile("token")
	if err != nil {
		return nil, err
	}
	tokens, err := api.NewFileTokenStore(tokenPath)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BaseURL,
		api.WithTokenStore(tokens),
		api.WithFramingMode(cfg.FramingMode()),
		api.WithLogger(logger))

	return &app{cfg: cfg, buffer: buf, logger: logger, closer: closer, tokens: tokens, client: client}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	_ = a.closer()
}

func runTUI(cmd *cobra.Command, args []string) error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("程序发生panic: %v\n", r)
			fmt.Println("堆栈跟踪:")
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if !isTerminal() {
		fmt.Println("ChatTester 需要在交互式终端中运行")
		fmt.Println("非交互环境请使用 `chattester send <text>`")
		return nil
	}

	if a.tokens.Token() == "" {
		fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("欢迎使用 ChatTester!"))
		fmt.Printf("首次使用需要登录 %s\n", a.cfg.BaseURL)
		if err := promptLogin(cmd, a); err != nil {
			return err
		}
	}

	bus := events.NewMemoryBus()
	defer bus.Clear()

	model := tui.NewModel(tui.Options{
		Config: a.cfg,
		Chat:   chat.NewConsole(a.client, bus, a.logger),
		Reveal: reveal.NewScheduler(bus, reveal.Options{
			Interval:  a.cfg.RevealInterval(),
			GroupSize: a.cfg.SentencesPerChunk,
		}),
		Buffer:   a.buffer,
		Logger:   a.logger,
		Username: a.cfg.Username,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("程序运行错误: %w", err)
	}
	return nil
}

// promptLogin 交互式询问用户名和密码，登录成功后保存 token 和用户名
func promptLogin(cmd *cobra.Command, a *app) error {
	username := a.cfg.Username
	fmt.Print("用户名")
	if username != "" {
		fmt.Printf(" [%s]", username)
	}
	fmt.Print(": ")

	var input string
	fmt.Scanln(&input)
	if input != "" {
		username = input
	}
	if username == "" {
		return errors.New("用户名不能为空")
	}

	fmt.Print("密码: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("读取密码失败: %w", err)
	}

	if _, err := a.client.Login(cmd.Context(), username, password); err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}

	a.cfg.Username = username
	if err := config.SaveConfig(a.cfg); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓ 登录成功，token 已保存"))
	return nil
}

// readPassword 终端中不回显读取密码，否则读一行
func readPassword() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return string(b), err
	}
	var line string
	_, err := fmt.Scanln(&line)
	return line, err
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
