package command

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/repository"
	"github.com/imoklv/imok/internal/store"
	"github.com/imoklv/imok/internal/tui"
)

func newTopCommand() *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live terminal view of recently seen devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if sqlDB, dbErr := db.DB(); dbErr == nil {
					_ = sqlDB.Close()
				}
			}()

			dashboard := tui.NewDashboard(repository.NewDeviceRepository(db), cfg.OfflineAfter, refresh)
			_, err = tea.NewProgram(dashboard, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "refresh interval")
	return cmd
}
