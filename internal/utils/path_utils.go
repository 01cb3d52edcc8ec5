package utils

import (
	"os"
	"path/filepath"
)

const appDirName = "chattester"

// GetConfigDir 获取跨平台的配置目录
// 优先级: CHATTESTER_CONFIG_HOME > APPDATA > XDG_CONFIG_HOME > ~/.config
func GetConfigDir() (string, error) {
	if configHome := os.Getenv("CHATTESTER_CONFIG_HOME"); configHome != "" {
		return configHome, nil
	}

	// Windows: 使用 APPDATA
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appDirName), nil
	}

	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}

// ConfigFile 返回配置目录下某个文件的完整路径
func ConfigFile(name string) (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureConfigDir 创建配置目录（如不存在）
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
