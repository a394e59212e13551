package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ralt/dexscope/internal/config"
	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/label"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/report"
	"github.com/ralt/dexscope/internal/scanner"
	"github.com/ralt/dexscope/internal/signer"
	"github.com/ralt/dexscope/internal/store/sqlite"
	"github.com/ralt/dexscope/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type scanOptions struct {
	dir            string
	scope          string
	filter         string
	locale         string
	workers        int
	jsonOut        bool
	output         string
	signKey        string
	signPassphrase string
	db             string
	noHistory      bool
	diff           bool
	digest         bool
	rejectClasses  bool
}

// NewScanCmd creates the scan command
func NewScanCmd(opts *globalOptions) *cobra.Command {
	var so scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Resolve application labels from APK archives",
		Long: `Reads AndroidManifest.xml and resources.arsc from every installed APK
(or every .apk under --dir) in parallel and resolves the application
label for the chosen locale. Archives that cannot be decoded are still
reported, with the reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyScanConfig(cmd, opts, &so)
			if err := validateScanOptions(opts, &so); err != nil {
				return err
			}
			return runScan(cmd.Context(), cmd, opts, &so)
		},
	}

	cmd.Flags().StringVar(&so.dir, "dir", "", "Scan .apk files under this directory instead of the device")
	cmd.Flags().StringVarP(&so.scope, "type", "t", "user", "App scope: user, system or all")
	cmd.Flags().StringVarP(&so.filter, "filter", "f", "", "Only report packages whose name contains this string")
	cmd.Flags().StringVarP(&so.locale, "locale", "l", "", "Locale for labels (default from config or LANG)")
	cmd.Flags().IntVarP(&so.workers, "workers", "w", 0, "Parallel workers (default one per CPU)")
	cmd.Flags().BoolVar(&so.jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().StringVarP(&so.output, "output", "o", "", "Export the report to a file (.json, .json.gz, .json.zst, .json.xz)")
	cmd.Flags().StringVarP(&so.signKey, "sign-key", "k", "", "OpenPGP private key to sign the exported report")
	cmd.Flags().StringVarP(&so.signPassphrase, "sign-passphrase", "p", "", "Passphrase of the signing key")
	cmd.Flags().StringVar(&so.db, "db", "", "Scan history database (default $XDG_DATA_HOME/dexscope/history.db)")
	cmd.Flags().BoolVar(&so.noHistory, "no-history", false, "Do not record the scan in the history database")
	cmd.Flags().BoolVar(&so.diff, "diff", false, "Show what changed since the previous recorded scan")
	cmd.Flags().BoolVar(&so.digest, "digest", false, "Record the SHA-256 of every archive")
	cmd.Flags().BoolVar(&so.rejectClasses, "reject-class-names", false, "Treat labels that look like Java class names as missing")

	return cmd
}

// applyScanConfig fills the options the user did not set from the config file
func applyScanConfig(cmd *cobra.Command, opts *globalOptions, so *scanOptions) {
	cfg := opts.cfg
	flags := cmd.Flags()
	if !flags.Changed("type") {
		so.scope = cfg.Scope
	}
	if !flags.Changed("workers") {
		so.workers = cfg.Workers
	}
	if !flags.Changed("db") {
		so.db = cfg.Database
	}
	if !flags.Changed("digest") {
		so.digest = cfg.Digest
	}
	if !flags.Changed("reject-class-names") {
		so.rejectClasses = cfg.RejectClassNames
	}
	if !flags.Changed("sign-key") {
		so.signKey = cfg.Signing.Key
	}
	if !flags.Changed("sign-passphrase") {
		so.signPassphrase = cfg.Signing.Passphrase
	}
}

func validateScanOptions(opts *globalOptions, so *scanOptions) error {
	if so.workers < 0 {
		return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("--workers must not be negative")}
	}
	if so.dir == "" && opts.remoteDevice() {
		return &models.ScanError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("label scans read the APK files directly; pull them with adb and use --dir"),
		}
	}
	if so.signKey != "" && so.output == "" {
		return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("--sign-key requires --output")}
	}
	if so.diff && so.noHistory {
		return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("--diff needs the scan history, drop --no-history")}
	}
	if _, err := device.ParseAppScope(so.scope); err != nil {
		return &models.ScanError{Type: models.ErrInvalidConfig, Err: err}
	}
	return nil
}

// newEngine builds a label scan engine
func newEngine(locale label.Locale, workers int, digest, rejectClassNames bool) *scanner.Engine {
	resolver := label.NewResolver(locale)
	resolver.RejectClassNames = rejectClassNames
	engine := scanner.NewEngine(resolver, workers)
	engine.Digest = digest
	return engine
}

func collectArchives(ctx context.Context, opts *globalOptions, so *scanOptions) ([]models.PackageArchive, string, error) {
	if so.dir != "" {
		archives, err := scanner.NewFileSystemScanner().Scan(ctx, so.dir)
		if err != nil {
			return nil, "", err
		}
		return archives, so.dir, nil
	}

	scope, _ := device.ParseAppScope(so.scope)
	pkgs, err := device.ListPackages(ctx, opts.runner(), scope)
	if err != nil {
		return nil, "", err
	}
	pkgs = device.FilterPackages(pkgs, so.filter)
	logrus.Infof("Found %d %s packages", len(pkgs), scope)
	return device.Archives(pkgs), "device:" + scope.String(), nil
}

func runScan(ctx context.Context, cmd *cobra.Command, opts *globalOptions, so *scanOptions) error {
	archives, source, err := collectArchives(ctx, opts, so)
	if err != nil {
		return err
	}

	engine := newEngine(opts.locale(so.locale), so.workers, so.digest, so.rejectClasses)

	rep, err := engine.Scan(ctx, archives)
	if err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}
	if so.dir != "" && so.filter != "" {
		rep = filterReport(rep, so.filter)
	}

	scanID, diff, err := recordScan(ctx, so, rep, source)
	if err != nil {
		return err
	}

	doc := &report.Document{
		Version:     report.FormatVersion,
		ScanID:      scanID,
		GeneratedAt: time.Now().UTC(),
		Report:      rep,
	}

	if so.output != "" {
		var s signer.Signer
		if so.signKey != "" {
			gpg, err := signer.NewGPGSigner(so.signKey, so.signPassphrase)
			if err != nil {
				return &models.ScanError{Type: models.ErrInvalidConfig, Path: so.signKey, Err: err}
			}
			s = gpg
		}
		if err := report.Export(doc, so.output, s); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if so.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	p := report.NewPrinter(out)
	p.PrintLabels(rep)
	if diff != nil {
		fmt.Fprintln(out)
		p.PrintDiff(diff)
	}
	return nil
}

// recordScan stores rep in the history database, returning the new scan id
// and, when requested, the diff against the previous scan
func recordScan(ctx context.Context, so *scanOptions, rep *models.ScanReport, source string) (string, *utils.ReportDiff, error) {
	if so.noHistory {
		return "", nil, nil
	}

	path := so.db
	if path == "" {
		var err error
		if path, err = config.DefaultDatabase(); err != nil {
			return "", nil, err
		}
	}

	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return "", nil, err
	}
	defer store.Close()

	prev, _, err := store.LatestReport(ctx)
	if err != nil {
		return "", nil, err
	}
	scanID, err := store.SaveReport(ctx, rep, source)
	if err != nil {
		return "", nil, err
	}
	logrus.Infof("Recorded scan %s in %s", scanID, path)

	if !so.diff {
		return scanID, nil, nil
	}
	return scanID, utils.DiffReports(prev, rep), nil
}

// filterReport keeps the records whose package identifier contains substr
func filterReport(rep *models.ScanReport, substr string) *models.ScanReport {
	out := &models.ScanReport{Locale: rep.Locale, Records: []models.PackageRecord{}}
	for _, rec := range rep.Records {
		if strings.Contains(rec.ID, substr) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
