package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type compileOptions struct {
	pkg   string
	all   bool
	mode  string
	force bool
}

// NewCompileCmd creates the compile command
func NewCompileCmd(opts *globalOptions) *cobra.Command {
	var co compileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Ask the runtime to recompile a package or all packages",
		Long: fmt.Sprintf(`Forwards a compile request to the Android package manager
("cmd package compile"). The package must be installed.

Modes: %s`, strings.Join(device.CompileModes, ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("mode") {
				co.mode = opts.cfg.Compile.Mode
			}
			if err := validateCompileOptions(&co); err != nil {
				return err
			}

			if !opts.cfg.ADB && opts.runnerOverride == nil && os.Geteuid() != 0 {
				logrus.Warn("Not running as root; the package manager may refuse to compile")
			}

			ctx := cmd.Context()
			runner := opts.runner()
			dispatcher := device.NewDispatcher(runner)

			var out string
			var err error
			if co.all {
				out, err = dispatcher.CompileAll(ctx, co.mode, co.force)
			} else {
				pkgs, lerr := device.ListPackages(ctx, runner, device.ScopeAll)
				if lerr != nil {
					return lerr
				}
				if _, ok := device.FindPackage(pkgs, co.pkg); !ok {
					return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("package %s is not installed", co.pkg)}
				}
				out, err = dispatcher.Compile(ctx, co.pkg, co.mode, co.force)
			}
			if err != nil {
				return err
			}

			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&co.pkg, "package", "p", "", "Package to compile")
	cmd.Flags().BoolVarP(&co.all, "all", "a", false, "Compile every package on the device")
	cmd.Flags().StringVarP(&co.mode, "mode", "m", device.DefaultCompileMode, "Compiler filter")
	cmd.Flags().BoolVarP(&co.force, "force", "f", false, "Recompile even if the artifacts are up to date")

	return cmd
}

func validateCompileOptions(co *compileOptions) error {
	if co.all == (co.pkg != "") {
		return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("exactly one of --package or --all is required")}
	}
	if co.pkg != "" {
		if err := device.ValidatePackageName(co.pkg); err != nil {
			return err
		}
	}
	return device.ValidateCompileMode(co.mode)
}
