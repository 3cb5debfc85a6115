package post

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
)

// PostCmd - лайки и удаление публикаций
var PostCmd = &cobra.Command{
	Use:   "post",
	Short: "Публикации",
	Long: `Изменения применяются сразу на устройстве и откатываются,
если сервер их не принял.`,
}

var LikeCmd = &cobra.Command{
	Use:   "like <id>",
	Short: "Поставить лайк",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		id, err := postID(args[0])
		if err != nil {
			return err
		}
		if _, err := app.LikePost(cmd.Context(), id); err != nil {
			return fmt.Errorf("лайк отменен: %w", err)
		}
		ui.Success("Лайк поставлен")
		return nil
	},
}

var UnlikeCmd = &cobra.Command{
	Use:   "unlike <id>",
	Short: "Убрать лайк",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		id, err := postID(args[0])
		if err != nil {
			return err
		}
		if _, err := app.UnlikePost(cmd.Context(), id); err != nil {
			return fmt.Errorf("изменение отменено: %w", err)
		}
		ui.Success("Лайк убран")
		return nil
	},
}

var DeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Удалить публикацию",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		id, err := postID(args[0])
		if err != nil {
			return err
		}
		if err := app.DeletePost(cmd.Context(), id); err != nil {
			return fmt.Errorf("удаление отменено: %w", err)
		}
		ui.Success("Публикация удалена")
		return nil
	},
}

func postID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("неверный id публикации: %q", s)
	}
	return id, nil
}
