package utils

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetConfigDirOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATTESTER_CONFIG_HOME", tmpDir)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir failed: %v", err)
	}
	if dir != tmpDir {
		t.Errorf("GetConfigDir = %q, want %q", dir, tmpDir)
	}

	path, err := ConfigFile("token")
	if err != nil {
		t.Fatalf("ConfigFile failed: %v", err)
	}
	if path != filepath.Join(tmpDir, "token") {
		t.Errorf("ConfigFile = %q", path)
	}
}

func TestGetConfigDirXDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATTESTER_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir failed: %v", err)
	}
	if dir != filepath.Join(tmpDir, "chattester") {
		t.Errorf("GetConfigDir = %q", dir)
	}
}

func TestSaveAndLoadHistory(t *testing.T) {
	t.Setenv("CHATTESTER_CONFIG_HOME", t.TempDir())

	msgs := []HistoryMessage{
		{Role: "user", Text: "hi", Timestamp: time.Now()},
		{Role: "assistant", Text: "hello", Timestamp: time.Now(), MessageID: "msg_1", TraceID: "tr_1"},
	}
	if err := SaveHistory("s_1", msgs); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	// 空会话不写入
	if err := SaveHistory("s_2", nil); err != nil {
		t.Fatalf("SaveHistory(nil) failed: %v", err)
	}

	history, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(history))
	}
	if history[0].SessionID != "s_1" || len(history[0].Messages) != 2 {
		t.Errorf("Unexpected entry %+v", history[0])
	}
	if history[0].Messages[1].MessageID != "msg_1" {
		t.Errorf("MessageID lost: %+v", history[0].Messages[1])
	}
}

func TestHistoryTrimmedToLimit(t *testing.T) {
	t.Setenv("CHATTESTER_CONFIG_HOME", t.TempDir())

	msg := []HistoryMessage{{Role: "user", Text: "x"}}
	for i := 0; i < maxHistoryEntries+5; i++ {
		if err := SaveHistory("s", msg); err != nil {
			t.Fatalf("SaveHistory failed: %v", err)
		}
	}

	history, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != maxHistoryEntries {
		t.Errorf("Expected %d entries, got %d", maxHistoryEntries, len(history))
	}
}

func TestLoadHistoryMissingFile(t *testing.T) {
	t.Setenv("CHATTESTER_CONFIG_HOME", filepath.Join(t.TempDir(), "nope"))

	history, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d", len(history))
	}
}
