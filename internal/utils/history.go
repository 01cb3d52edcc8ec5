package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxHistoryEntries 历史文件最多保留的会话数
const maxHistoryEntries = 100

// HistoryEntry 一次会话的对话记录
type HistoryEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	SessionID string           `json:"session_id,omitempty"`
	Messages  []HistoryMessage `json:"messages"`
}

// HistoryMessage 单条消息
type HistoryMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
	MessageID string    `json:"message_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// SaveHistory 追加一条会话记录到历史文件
func SaveHistory(sessionID string, messages []HistoryMessage) error {
	if len(messages) == 0 {
		return nil
	}

	historyPath, err := ConfigFile("history.json")
	if err != nil {
		return fmt.Errorf("获取历史文件路径失败: %w", err)
	}

	history, err := readHistory(historyPath)
	if err != nil {
		// 历史文件损坏时从头开始
		history = nil
	}

	history = append(history, HistoryEntry{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Messages:  messages,
	})

	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化历史失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
		return fmt.Errorf("创建历史目录失败: %w", err)
	}

	if err := os.WriteFile(historyPath, data, 0644); err != nil {
		return fmt.Errorf("写入历史文件失败: %w", err)
	}

	return nil
}

// LoadHistory 读取全部历史记录
func LoadHistory() ([]HistoryEntry, error) {
	historyPath, err := ConfigFile("history.json")
	if err != nil {
		return nil, fmt.Errorf("获取历史文件路径失败: %w", err)
	}

	history, err := readHistory(historyPath)
	if err != nil {
		return nil, fmt.Errorf("解析历史文件失败: %w", err)
	}
	if history == nil {
		history = []HistoryEntry{}
	}
	return history, nil
}

func readHistory(path string) ([]HistoryEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var history []HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
