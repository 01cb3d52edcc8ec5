package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zacy-Sokach/ChatTester/internal/config"
)

var (
	loginUsername string
	loginPassword string
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username (prompted when empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when empty)")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		if loginUsername == "" || loginPassword == "" {
			if loginUsername != "" {
				a.cfg.Username = loginUsername
			}
			return promptLogin(cmd, a)
		}

		if _, err := a.client.Login(cmd.Context(), loginUsername, loginPassword); err != nil {
			return fmt.Errorf("登录失败: %w", err)
		}
		a.cfg.Username = loginUsername
		if err := config.SaveConfig(a.cfg); err != nil {
			return fmt.Errorf("保存配置失败: %w", err)
		}

		fmt.Printf("logged in as %s, token stored in %s\n", loginUsername, a.tokens.Path())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.client.Logout(); err != nil {
			return fmt.Errorf("退出登录失败: %w", err)
		}
		fmt.Println("logged out")
		return nil
	},
}
