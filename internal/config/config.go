package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/reveal"
	"github.com/Zacy-Sokach/ChatTester/internal/utils"
)

// 环境变量覆盖项
const (
	EnvAPIBase    = "CHATTESTER_API_BASE"
	EnvStreamMode = "CHATTESTER_STREAM_MODE"
	EnvLogLevel   = "CHATTESTER_LOG_LEVEL"
	EnvRevealMS   = "CHATTESTER_REVEAL_MS"
)

// DefaultTheme 未知主题回退到的主题
const DefaultTheme = "classic"

// Themes 可用的主题 ID，按字母排序
var Themes = []string{"classic", "midnight", "paper"}

type Config struct {
	BaseURL           string `yaml:"base_url"`
	Username          string `yaml:"username,omitempty"`
	StreamMode        string `yaml:"stream_mode"`
	RevealMS          int    `yaml:"reveal_ms"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	Theme             string `yaml:"theme"`
	BotName           string `yaml:"bot_name"`
	BrandName         string `yaml:"brand_name"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file,omitempty"`
	ConsoleCapacity   int    `yaml:"console_capacity"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		BaseURL:           api.DefaultBaseURL,
		StreamMode:        string(api.FramingLines),
		RevealMS:          int(reveal.DefaultInterval / time.Millisecond),
		SentencesPerChunk: reveal.DefaultGroupSize,
		Theme:             DefaultTheme,
		BotName:           "Assistant",
		BrandName:         "Customer Support",
		LogLevel:          "info",
		ConsoleCapacity:   console.DefaultCapacity,
	}
}

// LoadDotEnv 加载工作目录中的 .env，文件不存在不算错误
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("加载 %s 失败: %w", p, err)
		}
	}
	return nil
}

// LoadConfig 读取配置文件，应用环境变量覆盖并规范化
// 配置文件不存在时返回默认配置
func LoadConfig() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig 写入配置文件
func SaveConfig(config *Config) error {
	configPath, err := getConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Normalize 填充缺省值并校验取值
func (c *Config) Normalize() error {
	def := Default()

	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}

	mode, err := api.ParseFramingMode(c.StreamMode)
	if err != nil {
		return err
	}
	c.StreamMode = string(mode)

	c.RevealMS = int(reveal.ClampInterval(time.Duration(c.RevealMS)*time.Millisecond) / time.Millisecond)

	if c.SentencesPerChunk < 1 {
		c.SentencesPerChunk = def.SentencesPerChunk
	}
	c.Theme = NormalizeTheme(c.Theme)
	if strings.TrimSpace(c.BotName) == "" {
		c.BotName = def.BotName
	}
	if strings.TrimSpace(c.BrandName) == "" {
		c.BrandName = def.BrandName
	}

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if _, err := console.ParseZapLevel(c.LogLevel); err != nil {
		return err
	}

	if c.ConsoleCapacity < 1 {
		c.ConsoleCapacity = def.ConsoleCapacity
	}
	return nil
}

// FramingMode 流式分帧方式
func (c *Config) FramingMode() api.FramingMode {
	mode, err := api.ParseFramingMode(c.StreamMode)
	if err != nil {
		return api.FramingLines
	}
	return mode
}

// RevealInterval 逐块显示的间隔
func (c *Config) RevealInterval() time.Duration {
	return reveal.ClampInterval(time.Duration(c.RevealMS) * time.Millisecond)
}

// NormalizeTheme 未知主题回退到 classic
func NormalizeTheme(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if slices.Contains(Themes, id) {
		return id
	}
	return DefaultTheme
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIBase)); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStreamMode)); v != "" {
		c.StreamMode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRevealMS)); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvRevealMS, v, err)
		}
		c.RevealMS = ms
	}
	return nil
}

// Path 配置文件路径
func Path() (string, error) {
	return getConfigPath()
}

func getConfigPath() (string, error) {
	configDir, err := utils.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("获取配置目录失败: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}
