package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dsatutor/internal/persist"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errors.New("refusing to delete sessions without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		kv, closeKV, err := openBackend(cfg)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer closeKV()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		removed, err := resetSessions(ctx, persist.NewAdapter(kv, cfg.Storage.Key))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("Removed %d sessions", removed)))
		return nil
	},
}

// resetSessions clears the stored collection and reports how many sessions it held.
func resetSessions(ctx context.Context, adapter *persist.Adapter) (int, error) {
	removed := len(adapter.Load(ctx).Sessions)
	if err := adapter.Clear(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}

func init() {
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "Confirm deletion")
	rootCmd.AddCommand(resetCmd)
}
