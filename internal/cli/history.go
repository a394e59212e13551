package cli

import (
	"fmt"

	"github.com/ralt/dexscope/internal/config"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/report"
	"github.com/ralt/dexscope/internal/store/sqlite"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		db    string
		limit int
		show  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded label scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if db == "" {
				db = opts.cfg.Database
			}
			if db == "" {
				var err error
				if db, err = config.DefaultDatabase(); err != nil {
					return err
				}
			}

			store, err := sqlite.Open(ctx, db)
			if err != nil {
				return err
			}
			defer store.Close()

			p := report.NewPrinter(cmd.OutOrStdout())
			if show != "" {
				rep, err := store.Report(ctx, show)
				if err != nil {
					return err
				}
				if rep == nil {
					return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("no scan %s in %s", show, db)}
				}
				p.PrintLabels(rep)
				return nil
			}

			scans, err := store.ListScans(ctx, limit)
			if err != nil {
				return err
			}
			p.PrintHistory(scans)
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "Scan history database (default $XDG_DATA_HOME/dexscope/history.db)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of scans to list (0 for all)")
	cmd.Flags().StringVar(&show, "show", "", "Print the records of one scan")

	return cmd
}
