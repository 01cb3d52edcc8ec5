package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zacy-Sokach/ChatTester/internal/mockserver"
)

func TestSendCommandAgainstMock(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATTESTER_CONFIG_HOME", dir)

	mock := mockserver.New(mockserver.Options{
		Reply: func(text string) string { return "pong: " + text },
	})
	server := httptest.NewServer(mock.Handler())
	defer server.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"send",
		"--base-url", server.URL + "/api",
		"--env-file", filepath.Join(dir, "missing.env"),
		"--token", mock.IssueToken(),
		"--delete",
		"ping",
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	assert.Equal(t, "pong: ping\n", out.String())
	assert.Equal(t, 0, mock.SessionCount())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ChatTester "+Version)
}
