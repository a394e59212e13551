package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/report"
	"github.com/spf13/cobra"
)

type statusOptions struct {
	scope   string
	filter  string
	details bool
	locale  string
	workers int
}

// NewStatusCmd creates the status command
func NewStatusCmd(opts *globalOptions) *cobra.Command {
	var so statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the dexopt status of installed packages",
		Long: `Lists the installed packages, reads the runtime's dexopt dump and prints
the compiler filter of every artifact, followed by a profile summary.
With --details each package gets its own block headed by its label.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := opts.scope(cmd, so.scope)
			if err != nil {
				return err
			}
			if so.details && opts.remoteDevice() {
				return &models.ScanError{
					Type: models.ErrInvalidConfig,
					Err:  fmt.Errorf("--details reads labels from the APK files on this host and cannot be used with --adb"),
				}
			}
			return runStatus(cmd.Context(), cmd, opts, scope, &so)
		},
	}

	cmd.Flags().StringVarP(&so.scope, "type", "t", "user", "App scope: user, system or all")
	cmd.Flags().StringVarP(&so.filter, "filter", "f", "", "Only show packages whose name contains this string")
	cmd.Flags().BoolVarP(&so.details, "details", "d", false, "Print a block per package with its label")
	cmd.Flags().StringVarP(&so.locale, "locale", "l", "", "Locale for labels (default from config or LANG)")
	cmd.Flags().IntVarP(&so.workers, "workers", "w", 0, "Label scan workers (default one per CPU)")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, opts *globalOptions, scope device.AppScope, so *statusOptions) error {
	runner := opts.runner()
	p := report.NewPrinter(cmd.OutOrStdout())

	p.Step("Fetching package list (%s) ...", scope)
	pkgs, err := device.ListPackages(ctx, runner, scope)
	if err != nil {
		return err
	}
	p.Step("Found %d packages.", len(pkgs))

	p.Step("Fetching dexopt dump...")
	dump, err := device.FetchDexoptDump(ctx, runner)
	if err != nil {
		return err
	}
	index := device.ParseDexoptDump(dump)

	pkgs = device.FilterPackages(pkgs, so.filter)

	labels := make(map[string]string)
	if so.details {
		workers := so.workers
		if !cmd.Flags().Changed("workers") {
			workers = opts.cfg.Workers
		}
		engine := newEngine(opts.locale(so.locale), workers, false, opts.cfg.RejectClassNames)
		rep, err := engine.Scan(ctx, device.Archives(pkgs))
		if err != nil {
			return err
		}
		for _, rec := range rep.Records {
			if rec.Status == models.StatusOk {
				labels[rec.ListedID] = rec.Label
			}
		}
	} else {
		p.PrintHeader()
	}

	for _, pkg := range pkgs {
		infos, found := index.Lookup(pkg.Name)
		if so.details {
			p.PrintBlock(pkg, labels[pkg.Name], infos, found)
		} else if found {
			p.PrintStatusRows(pkg, infos)
		}
	}

	seen, stats := index.Summarize(pkgs)
	name := scope.String()
	p.PrintSummary(strings.ToUpper(name[:1])+name[1:], seen, stats)
	return nil
}
