package cli

import (
	"fmt"

	"github.com/ralt/dexscope/internal/config"
	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/label"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalOptions carries the persistent flags and the loaded config to
// every subcommand
type globalOptions struct {
	configPath string
	adb        bool
	serial     string

	cfg *config.Config

	// runnerOverride replaces the device runner in tests
	runnerOverride device.Runner
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(runner device.Runner) *cobra.Command {
	opts := &globalOptions{runnerOverride: runner}

	rootCmd := &cobra.Command{
		Use:   "dexscope",
		Short: "Inspect the ART compilation state and labels of installed Android apps",
		Long: `Dexscope lists the packages installed on an Android device, shows how
the runtime has compiled each of them and resolves their display labels
straight from the APK files.

Commands:
  - status:  dexopt status of every package, with a profile summary
  - scan:    resolve application labels from the APK archives
  - compile: ask the runtime to recompile a package or the whole device
  - history: list the label scans stored in the history database
  - verify:  check the signature of an exported scan report`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}

			return opts.load(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/dexscope/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.adb, "adb", false, "Run device commands through adb instead of locally")
	rootCmd.PersistentFlags().StringVarP(&opts.serial, "serial", "s", "", "Device serial for adb (implies --adb)")

	// Add subcommands
	rootCmd.AddCommand(NewStatusCmd(opts))
	rootCmd.AddCommand(NewScanCmd(opts))
	rootCmd.AddCommand(NewCompileCmd(opts))
	rootCmd.AddCommand(NewHistoryCmd(opts))
	rootCmd.AddCommand(NewVerifyCmd(opts))

	return rootCmd
}

// load reads the config file and applies the persistent flag overrides
func (o *globalOptions) load(cmd *cobra.Command) error {
	var err error
	if o.configPath != "" {
		o.cfg, err = config.Load(o.configPath)
	} else {
		o.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("adb") {
		o.cfg.ADB = o.adb
	}
	if flags.Changed("serial") {
		o.cfg.ADB = true
		o.cfg.ADBSerial = o.serial
	}

	logged := *o.cfg
	if logged.Signing.Passphrase != "" {
		logged.Signing.Passphrase = "<redacted>"
	}
	logrus.Debugf("Configuration: %+v", logged)
	return nil
}

// remoteDevice reports whether package paths live on another host, so that
// the archives cannot be opened locally
func (o *globalOptions) remoteDevice() bool {
	return o.cfg.ADB && o.runnerOverride == nil
}

func (o *globalOptions) runner() device.Runner {
	if o.runnerOverride != nil {
		return o.runnerOverride
	}
	return o.cfg.Runner()
}

// locale picks the label locale: flag, then config file, then environment
func (o *globalOptions) locale(flag string) label.Locale {
	switch {
	case flag != "":
		return label.ParseLocale(flag)
	case o.cfg.Locale != "":
		return label.ParseLocale(o.cfg.Locale)
	default:
		return label.LocaleFromEnv()
	}
}

// scope resolves the app scope from the flag or the config file
func (o *globalOptions) scope(cmd *cobra.Command, flag string) (device.AppScope, error) {
	value := o.cfg.Scope
	if cmd.Flags().Changed("type") {
		value = flag
	}
	scope, err := device.ParseAppScope(value)
	if err != nil {
		return scope, fmt.Errorf("invalid --type: %w", err)
	}
	return scope, nil
}
