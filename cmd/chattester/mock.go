package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/mockserver"
)

var (
	mockAddr     string
	mockMode     string
	mockDelay    time.Duration
	mockUsername string
	mockPassword string
)

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().StringVar(&mockAddr, "addr", ":8000", "listen address")
	mockCmd.Flags().StringVar(&mockMode, "mode", string(api.FramingLines), "stream framing: lines or whole")
	mockCmd.Flags().DurationVar(&mockDelay, "delay", 40*time.Millisecond, "delay between streamed pieces")
	mockCmd.Flags().StringVar(&mockUsername, "username", "tester", "accepted username")
	mockCmd.Flags().StringVar(&mockPassword, "password", "tester", "accepted password")
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run an in-memory mock chat backend",
	Long: `Serves the chat API under /api with in-memory sessions, streaming
replies in the chosen framing mode. Point the TUI at it with
--base-url http://localhost:8000/api.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := api.ParseFramingMode(mockMode)
		if err != nil {
			return err
		}

		logger, err := newServerLogger(flagLogLevel)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		mock := mockserver.New(mockserver.Options{
			Mode:       mode,
			Username:   mockUsername,
			Password:   mockPassword,
			ChunkDelay: mockDelay,
			Logger:     logger,
		})

		srv := &http.Server{
			Addr:              mockAddr,
			Handler:           mock.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		logger.Info("mock_listening",
			zap.String("addr", mockAddr),
			zap.String("mode", string(mode)),
			zap.String("username", mockUsername))
		fmt.Printf("mock backend on %s (base URL http://localhost%s/api)\n", mockAddr, mockAddr)

		return runServer(cmd.Context(), srv)
	},
}

// newServerLogger 模拟后端的日志直接写到标准错误
func newServerLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := console.ParseZapLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// runServer 运行直到 ctx 结束，然后优雅关闭
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
