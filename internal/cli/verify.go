package cli

import (
	"fmt"
	"os"

	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/report"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd(opts *globalOptions) *cobra.Command {
	var keyPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify <report>",
		Short: "Check the signature of an exported scan report",
		Long: `Verifies <report> against <report>.asc with the given armored OpenPGP
public key and prints the report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyPath == "" {
				return &models.ScanError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("--key is required")}
			}
			pub, err := os.ReadFile(keyPath)
			if err != nil {
				return &models.ScanError{Type: models.ErrFileOp, Path: keyPath, Err: err}
			}

			doc, fingerprint, err := report.Verify(args[0], pub)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Good signature from %s\n", fingerprint)
			if !quiet {
				fmt.Fprintf(out, "Scan %s generated %s, locale %q\n\n", doc.ScanID, doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"), doc.Report.Locale)
				report.NewPrinter(out).PrintLabels(doc.Report)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Armored OpenPGP public key")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the verification result")

	return cmd
}
