// cmd/client/cmd/auth/login.go
package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
)

var syncAfterLogin bool

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти в систему",
	Long: `Аутентификация на сервере сбора данных.

После входа токен сохраняется локально, и записи создаются от имени этого пользователя.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		fmt.Println("=== Вход в систему ===")
		fmt.Println()

		fmt.Print("Login: ")
		var login string
		_, _ = fmt.Scanln(&login)

		fmt.Print("Пароль: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("ошибка чтения пароля: %w", err)
		}
		fmt.Println()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		session, err := app.Login(ctx, login, string(password))
		if err != nil {
			return fmt.Errorf("ошибка аутентификации: %w", err)
		}

		fmt.Println()
		ui.Success("Вход выполнен (user_id=%d)", session.UserID)

		if !syncAfterLogin {
			return nil
		}

		fmt.Println("Отправка неотправленных записей...")
		result, err := app.SyncNow(ctx)
		if err != nil {
			ui.Warn("Ошибка синхронизации: %v", err)
			fmt.Println("Вы можете продолжить работу в офлайн-режиме")
			return nil
		}
		if result.Failed > 0 {
			ui.Warn("Не отправлено записей: %d", result.Failed)
		}
		ui.Success("Отправлено записей: %d", result.Synced)
		return nil
	},
}

func init() {
	LoginCmd.Flags().BoolVar(&syncAfterLogin, "sync", true, "отправить неотправленные записи после входа")
}
