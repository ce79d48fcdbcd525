package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechXTT/pgraph/pkg/migrate"
	"github.com/TechXTT/pgraph/pkg/runtime"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or inspect SQL migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDSN(); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := runtime.Connect(ctx, a.cfg.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			mgr, err := migrate.NewManager(db, a.cfg.MigrationsDir, a.log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				n, err := mgr.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", n)
			case "down":
				if err := mgr.Down(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "rolled back one migration")
			case "status":
				status, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, status)
			}
			return nil
		},
	}
	cmd.Flags().String("migrations-dir", "", "directory holding NNNN_name.up.sql / .down.sql files")
	return cmd
}
