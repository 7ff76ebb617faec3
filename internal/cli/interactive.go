package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/nbzz/add-qufirewall-rules/pkg/config"
	"github.com/nbzz/add-qufirewall-rules/pkg/qufirewall"
)

// ErrNotInteractive is returned when no inputs are given and no terminal is
// attached to prompt on.
var ErrNotInteractive = errors.New("no terminal detected, pass --csv and --ip instead")

const (
	modeRenumberNewFile = iota + 1
	modeKeepIDsNewFile
	modeRenumberInPlace
	modeKeepIDsInPlace
)

var (
	summaryStyle = lipgloss.NewStyle().Bold(true)
	detailStyle  = lipgloss.NewStyle().Faint(true).MarginLeft(2)
)

// promptArgs fills rc by asking for the CSV path, the allow-list path, and the
// output mode.
func promptArgs(rc *RunArgs, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotInteractive
	}

	var (
		csvPath   string
		allowPath string
		mode      int
	)

	defaultAllow := defaultAllowListPath(cfg.AllowListName)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("QuFirewall CSV export").
				Description("Path to the rule export downloaded from QuFirewall.").
				Placeholder("firewall.csv").
				Validate(validateCSVInput).
				Value(&csvPath),
			huh.NewInput().
				Title("IP allow list").
				Description(fmt.Sprintf("One address per line. Blank uses %s.", defaultAllow)).
				Value(&allowPath),
			huh.NewSelect[int]().
				Title("Output mode").
				Options(
					huh.NewOption("Renumber rules, write a new file", modeRenumberNewFile),
					huh.NewOption("Keep rule ids, write a new file", modeKeepIDsNewFile),
					huh.NewOption("Renumber rules, rewrite in place (.bak backup)", modeRenumberInPlace),
					huh.NewOption("Keep rule ids, rewrite in place (.bak backup)", modeKeepIDsInPlace),
				).
				Value(&mode),
		),
	)

	err := form.Run()
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}

	rc.CSV = unquote(csvPath)

	rc.AllowList = unquote(allowPath)
	if rc.AllowList == "" {
		rc.AllowList = defaultAllow
	}

	rc.KeepIDs, rc.InPlace = modeArgs(mode)
	if !rc.InPlace {
		rc.Out = qufirewall.DerivedOutPath(rc.CSV, interactiveSuffix(rc.KeepIDs))
	}

	rc.interactive = true

	return nil
}

// validateCSVInput keeps the form open until an existing file is entered.
func validateCSVInput(s string) error {
	path := unquote(s)
	if path == "" {
		return errors.New("enter a file path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s", path)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	return nil
}

// modeArgs maps a menu choice onto the keep-ids and in-place switches.
func modeArgs(mode int) (keepIDs, inPlace bool) {
	return mode == modeKeepIDsNewFile || mode == modeKeepIDsInPlace,
		mode == modeRenumberInPlace || mode == modeKeepIDsInPlace
}

// interactiveSuffix names the derived output so both menu variants can exist
// side by side.
func interactiveSuffix(keepIDs bool) string {
	if keepIDs {
		return ".updated.top.keepids"
	}

	return ".updated.top"
}

// unquote strips surrounding whitespace and quote characters, since pasted
// paths often carry them.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

// defaultAllowListPath resolves name next to the executable, falling back to
// the bare name when the executable path is unavailable.
func defaultAllowListPath(name string) string {
	exe, err := os.Executable()
	if err != nil {
		return name
	}

	return filepath.Join(filepath.Dir(exe), name)
}

func renderSummary(result *qufirewall.Result, dryRun bool) string {
	lines := []string{
		summaryStyle.Render(fmt.Sprintf("Added %d rules, skipped %d duplicates.", result.Added, result.Skipped)),
	}

	switch {
	case dryRun:
		lines = append(lines, detailStyle.Render("Dry run, "+result.OutPath+" was not written."))

	case result.BackupWritten:
		lines = append(lines,
			detailStyle.Render("Wrote "+result.OutPath),
			detailStyle.Render(fmt.Sprintf("Backup %s (%s)",
				result.BackupPath,
				humanize.Bytes(uint64(result.BackupSize)), //nolint:gosec // G115: file sizes are non-negative.
			)),
		)

	case result.BackupPath != "":
		lines = append(lines,
			detailStyle.Render("Wrote "+result.OutPath),
			detailStyle.Render("Existing backup "+result.BackupPath+" kept."),
		)

	default:
		lines = append(lines, detailStyle.Render("Wrote "+result.OutPath))
	}

	return strings.Join(lines, "\n")
}
