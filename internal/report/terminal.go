// Package report renders scan and dexopt results for the terminal and
// exports scan reports to disk.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/utils"
)

// ANSI SGR codes
const (
	sgrReset     = "0"
	sgrBold      = "1"
	sgrDim       = "2"
	sgrItalic    = "3"
	sgrUnderline = "4"
	sgrRed       = "31"
	sgrGreen     = "32"
	sgrYellow    = "33"
	sgrBlue      = "34"
	sgrMagenta   = "35"
	sgrCyan      = "36"
	sgrWhite     = "37"
	sgrHiBlue    = "94"
	sgrHiYellow  = "93"
	sgrHiGreen   = "92"
	sgrHiWhite   = "97"
)

const (
	packageColumn = 45
	summaryWidth  = 47
	summaryLabel  = 22
	blockMinWidth = 40
)

// Printer writes human readable output, coloured when w is a terminal
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a printer for w. Colour is enabled when w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, color: color}
}

// SetColor forces colour on or off
func (p *Printer) SetColor(on bool) {
	p.color = on
}

func (p *Printer) paint(s string, codes ...string) string {
	if !p.color || len(codes) == 0 {
		return s
	}
	return "\x1b[" + strings.Join(codes, ";") + "m" + s + "\x1b[" + sgrReset + "m"
}

// StatusColor returns the SGR colour of a dexopt status
func StatusColor(status string) string {
	switch status {
	case "speed-profile", "speed":
		return sgrGreen
	case "verify":
		return sgrYellow
	case "quicken":
		return sgrBlue
	case "run-from-apk", "error":
		return sgrRed
	case "everything":
		return sgrMagenta
	default:
		return sgrWhite
	}
}

func (p *Printer) colorizeStatus(line, status string) string {
	if status == "error" {
		return p.paint(line, StatusColor(status), sgrBold)
	}
	return p.paint(line, StatusColor(status))
}

// Step prints a progress line
func (p *Printer) Step(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint("[-]", sgrCyan), fmt.Sprintf(format, args...))
}

// PrintHeader prints the status table header
func (p *Printer) PrintHeader() {
	fmt.Fprintf(p.w, "\n%s | %s\n\n",
		p.paint(pad("Package", packageColumn), sgrBold, sgrUnderline),
		p.paint(pad("DexOpt Status", 30), sgrBold, sgrUnderline))
}

// PrintStatusRows prints the dexopt lines of one package as table rows
func (p *Printer) PrintStatusRows(pkg device.Package, infos []device.DexoptInfo) {
	for i, info := range infos {
		name := ""
		if i == 0 {
			name = pkg.Name
		}
		fmt.Fprintf(p.w, "%s | %s\n", p.paint(pad(name, packageColumn), sgrHiWhite), p.colorizeStatus(info.Line, info.Status))
	}
	fmt.Fprintln(p.w)
}

// PrintBlock prints a boxed package title followed by its dexopt lines.
// label may be empty.
func (p *Printer) PrintBlock(pkg device.Package, label string, infos []device.DexoptInfo, found bool) {
	display := pkg.Name
	inner := p.paint(pkg.Name, sgrBold, sgrHiWhite)
	if label != "" {
		display = fmt.Sprintf("%s (%s)", label, pkg.Name)
		inner = fmt.Sprintf("%s (%s)", p.paint(label, sgrBold, sgrCyan), p.paint(pkg.Name, sgrBold, sgrHiWhite))
	}

	n := utf8.RuneCountInString(display)
	width := n + 4
	if width < blockMinWidth {
		width = blockMinWidth
	}
	left := (width - n) / 2
	right := width - n - left
	border := strings.Repeat("─", width)

	fmt.Fprintln(p.w, p.paint("┌"+border+"┐", sgrCyan))
	fmt.Fprintf(p.w, "%s%s%s%s\n", p.paint("│", sgrCyan), strings.Repeat(" ", left), inner, p.paint(strings.Repeat(" ", right)+"│", sgrCyan))
	fmt.Fprintln(p.w, p.paint("└"+border+"┘", sgrCyan))

	if !found {
		fmt.Fprintf(p.w, "  %s\n\n", p.paint("(no info found)", sgrItalic, sgrRed))
		return
	}

	// Align the ISA prefixes on their colon
	prefix := 0
	for _, info := range infos {
		if i := strings.Index(info.Line, ":"); i > prefix {
			prefix = i
		}
	}
	for _, info := range infos {
		line := info.Line
		if i := strings.Index(line, ":"); i >= 0 {
			line = pad(line[:i], prefix) + line[i:]
		}
		fmt.Fprintf(p.w, "  %s\n", p.colorizeStatus(line, info.Status))
	}
	fmt.Fprintln(p.w)
}

// PrintSummary prints the boxed dexopt summary
func (p *Printer) PrintSummary(scope string, total int, stats []device.StatusCount) {
	edge := func(s string) string { return p.paint(s, sgrHiBlue) }
	mid := edge("╠" + strings.Repeat("═", summaryWidth) + "╣")

	fmt.Fprintf(p.w, "\n\n%s\n", edge("╔"+strings.Repeat("═", summaryWidth)+"╗"))
	p.summaryTitle("DEXOPT ANALYSIS SUMMARY", sgrBold, sgrHiYellow)
	fmt.Fprintln(p.w, mid)
	p.summaryLine("App Scope", scope, sgrMagenta)
	p.summaryLine("Total Apps Checked", fmt.Sprint(total), sgrHiGreen)
	fmt.Fprintln(p.w, mid)
	p.summaryTitle("Profile Breakdown", sgrDim, sgrBold)
	fmt.Fprintln(p.w, mid)

	if len(stats) == 0 {
		msg := "No profile data found."
		fmt.Fprintf(p.w, "%s  %s%s%s\n", edge("║"), msg, strings.Repeat(" ", clamp(summaryWidth-2-len(msg))), edge("║"))
	}
	for _, s := range stats {
		p.summaryLine(s.Status, fmt.Sprint(s.Count), StatusColor(s.Status))
	}
	fmt.Fprintln(p.w, edge("╚"+strings.Repeat("═", summaryWidth)+"╝"))
}

func (p *Printer) summaryTitle(title string, codes ...string) {
	left := (summaryWidth - len(title)) / 2
	right := summaryWidth - len(title) - left
	fmt.Fprintf(p.w, "%s%s%s%s\n",
		p.paint("║", sgrHiBlue), strings.Repeat(" ", left), p.paint(title, codes...),
		p.paint(strings.Repeat(" ", right)+"║", sgrHiBlue))
}

func (p *Printer) summaryLine(label, value, valueColor string) {
	padding := strings.Repeat(" ", clamp(summaryWidth-5-summaryLabel-utf8.RuneCountInString(value)))
	fmt.Fprintf(p.w, "%s  %s : %s%s%s\n",
		p.paint("║", sgrHiBlue),
		p.paint(pad(label, summaryLabel), sgrBold, sgrCyan),
		p.paint(value, sgrBold, valueColor),
		padding,
		p.paint("║", sgrHiBlue))
}

// recordColor returns the colour of a record status
func recordColor(s models.Status) string {
	switch s {
	case models.StatusOk:
		return sgrGreen
	case models.StatusLabelMissing:
		return sgrYellow
	default:
		return sgrRed
	}
}

// PrintLabels prints one row per scanned archive. Failed and unlabelled
// archives stay in the table.
func (p *Printer) PrintLabels(report *models.ScanReport) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tLABEL\tVERSION\tSIZE\tSTATUS")
	for _, rec := range report.Records {
		version := rec.VersionName
		if version == "" && rec.VersionCode != 0 {
			version = fmt.Sprint(rec.VersionCode)
		}
		if version == "" {
			version = "-"
		}

		status := rec.Status.String()
		if rec.Mismatch {
			status += " (listed as " + rec.ListedID + ")"
		}
		if rec.Reason != "" && rec.Status != models.StatusOk {
			status += ": " + rec.Reason
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Label, version, humanize.Bytes(uint64(rec.Size)), p.paint(status, recordColor(rec.Status)))
	}
	tw.Flush()

	counts := report.Counts()
	fmt.Fprintf(p.w, "\n%d archives: %s ok, %s label missing, %s failed\n",
		len(report.Records),
		p.paint(fmt.Sprint(counts[models.StatusOk]), sgrBold, sgrGreen),
		p.paint(fmt.Sprint(counts[models.StatusLabelMissing]), sgrBold, sgrYellow),
		p.paint(fmt.Sprint(counts[models.StatusParseFailed]), sgrBold, sgrRed))
}

// PrintDiff prints the changes since the previous scan
func (p *Printer) PrintDiff(diff *utils.ReportDiff) {
	if diff.Empty() {
		fmt.Fprintln(p.w, "No changes since the previous scan.")
		return
	}
	for _, rec := range diff.Added {
		fmt.Fprintf(p.w, "%s %s (%s)\n", p.paint("+", sgrGreen), rec.ID, rec.Label)
	}
	for _, rec := range diff.Removed {
		fmt.Fprintf(p.w, "%s %s (%s)\n", p.paint("-", sgrRed), rec.ID, rec.Label)
	}
	for _, r := range diff.Relabelled {
		fmt.Fprintf(p.w, "%s %s: %q -> %q\n", p.paint("~", sgrYellow), r.ID, r.OldLabel, r.NewLabel)
	}
}

// PrintHistory prints stored scans in the order given
func (p *Printer) PrintHistory(scans []models.ScanInfo) {
	if len(scans) == 0 {
		fmt.Fprintln(p.w, "No scans recorded.")
		return
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCAN\tWHEN\tLOCALE\tPACKAGES\tMISSING\tFAILED")
	for _, s := range scans {
		locale := s.Locale
		if locale == "" {
			locale = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			s.ID, humanize.Time(s.CreatedAt), locale, s.Total, s.Missing, s.Failed)
	}
	tw.Flush()
}

// pad left-aligns s in a field of n runes
func pad(s string, n int) string {
	if c := utf8.RuneCountInString(s); c < n {
		return s + strings.Repeat(" ", n-c)
	}
	return s
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
