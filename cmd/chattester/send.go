package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
)

var (
	sendSession  string
	sendToken    string
	sendNoStream bool
	sendDelete   bool
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "existing session id (a new session is created when empty)")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "access token to use instead of the stored one")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "use the non-streaming message endpoint and print the JSON response")
	sendCmd.Flags().BoolVar(&sendDelete, "delete", false, "delete the session afterwards")
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and print the reply",
	Long: `Sends a single message without the TUI. Streamed deltas are written to
stdout as they arrive; the message and trace ids follow on stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		client := a.client
		if sendToken != "" {
			client = api.NewClient(a.cfg.BaseURL,
				api.WithTokenStore(api.NewMemoryTokenStore(sendToken)),
				api.WithFramingMode(a.cfg.FramingMode()),
				api.WithLogger(a.logger))
		}
		if client.Tokens().Token() == "" {
			return errors.New("not logged in, run `chattester login` first")
		}

		ctx := cmd.Context()
		text := strings.Join(args, " ")

		sessionID := sendSession
		if sessionID == "" {
			sess, err := client.CreateSession(ctx, nil)
			if err != nil {
				return fmt.Errorf("创建会话失败: %w", err)
			}
			sessionID = sess.SessionID
			fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
		}

		if sendDelete {
			defer func() {
				if _, err := client.DeleteSession(ctx, sessionID); err != nil {
					a.logger.Warn("session_delete_failed", zap.String("session_id", sessionID), zap.Error(err))
					fmt.Fprintf(os.Stderr, "delete session: %v\n", err)
				}
			}()
		}

		out := cmd.OutOrStdout()

		if sendNoStream {
			raw, err := client.SendMessage(ctx, sessionID, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(raw))
			return nil
		}

		res, err := client.SendMessageStream(ctx, sessionID, text, func(delta, _ string) {
			fmt.Fprint(out, delta)
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "message_id: %s\ntrace_id: %s\n", orDash(res.MessageID), orDash(res.TraceID))
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
