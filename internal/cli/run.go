package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nbzz/add-qufirewall-rules/pkg/config"
	"github.com/nbzz/add-qufirewall-rules/pkg/qufirewall"
)

const (
	cmdExamples = `  # Reorder rules using an allow list:
  qfwtop --csv firewall.csv --ip ip_allow_list.txt

  # Rewrite the export in place, keeping a .bak backup:
  qfwtop --csv firewall.csv --ip ip_allow_list.txt --in-place

  # Keep existing rule ids, numbering new rules after the current maximum:
  qfwtop --csv firewall.csv --ip ip_allow_list.txt --keep-ids

  # Preview the change without writing anything:
  qfwtop --csv firewall.csv --ip ip_allow_list.txt --dry-run

  # Reorder the rulesv6 column using an IPv6 allow list:
  qfwtop --csv firewall.csv --ip ip6_allow_list.txt --v6

  # Prompt for everything interactively:
  qfwtop`
)

type RunArgs struct {
	*RootArgs

	CSV         string
	AllowList   string
	Out         string
	ConfigPath  string
	InPlace     bool
	NoBackup    bool
	KeepIDs     bool
	V6          bool
	Diff        bool
	DryRun      bool
	WriteConfig bool
	ShowConfig  bool

	interactive bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.CSV, "csv", "", "Path to the QuFirewall CSV export")
	cmd.Flags().StringVar(&ra.AllowList, "ip", "", "Path to the allow-list file, one address per line")
	cmd.Flags().StringVar(&ra.Out, "out", "", "Output path (default: input with .updated before the extension)")
	cmd.Flags().BoolVar(&ra.InPlace, "in-place", false, "Rewrite the input file, keeping a .bak backup")
	cmd.Flags().BoolVar(&ra.NoBackup, "no-backup", false, "Skip the .bak backup for in-place runs")
	cmd.Flags().BoolVar(&ra.KeepIDs, "keep-ids", false, "Keep existing rule ids, number new rules after the maximum")
	cmd.Flags().BoolVar(&ra.V6, "v6", false, "Reorder the rulesv6 column instead of rules")
	cmd.Flags().BoolVar(&ra.Diff, "diff", false, "Print a unified diff of the rule list change")
	cmd.Flags().BoolVar(&ra.DryRun, "dry-run", false, "Print the diff and exit without writing anything")
	cmd.Flags().StringVar(&ra.ConfigPath, "config", "", "Path to the qfwtop configuration file")
	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration files and exit")
	cmd.Flags().BoolVar(&ra.ShowConfig, "show-config", false, "Print the active configuration and exit")

	err := cmd.MarkFlagFilename("csv", "csv")
	if err != nil {
		panic(fmt.Errorf("mark csv flag: %w", err))
	}

	err = cmd.MarkFlagFilename("ip", "txt")
	if err != nil {
		panic(fmt.Errorf("mark ip flag: %w", err))
	}

	err = cmd.MarkFlagFilename("out", "csv")
	if err != nil {
		panic(fmt.Errorf("mark out flag: %w", err))
	}

	err = cmd.MarkFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}
}

func run(cmd *cobra.Command, rc *RunArgs) error {
	var configPath string
	if rc.ConfigPath != "" {
		configPath = rc.ConfigPath
	} else {
		configPath = config.GetPath()
	}

	if rc.WriteConfig {
		// Write the default configuration and exit.
		return config.WriteDefaultConfig(configPath, false)
	}

	cfg, err := loadConfig(configPath, rc.ConfigPath != "")
	if err != nil {
		return err
	}

	if rc.ShowConfig {
		return showConfig(cmd, cfg, configPath)
	}

	// No inputs at all means interactive mode.
	if rc.CSV == "" && rc.AllowList == "" {
		err := promptArgs(rc, cfg)
		if err != nil {
			return err
		}
	}

	err = requireInputs(rc)
	if err != nil {
		return err
	}

	result, err := qufirewall.Process(cmd.Context(), qufirewall.Options{
		CSVPath:   rc.CSV,
		AllowPath: rc.AllowList,
		OutPath:   rc.Out,
		Template:  cfg.NewRule,
		InPlace:   rc.InPlace,
		NoBackup:  rc.NoBackup,
		KeepIDs:   rc.KeepIDs,
		V6:        rc.V6,
		Diff:      rc.Diff || rc.DryRun,
		DryRun:    rc.DryRun,
	})
	if err != nil {
		return err
	}

	printResult(cmd, rc, result)

	if rc.interactive {
		waitForEnter(cmd)
	}

	return nil
}

// loadConfig reads the configuration at configPath. A missing file is only an
// error when the path was given explicitly; otherwise defaults apply.
func loadConfig(configPath string, explicit bool) (*config.Config, error) {
	cl, err := config.NewConfigLoaderFromFile(configPath)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("read config %q: %w", configPath, err)
		}

		slog.Debug("no config file, using defaults",
			slog.String("path", configPath),
			slog.Any("err", err),
		)

		return config.NewConfig(), nil
	}

	err = cl.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", configPath, err)
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", configPath, err)
	}

	return cfg, nil
}

func requireInputs(rc *RunArgs) error {
	var missing []string

	if rc.CSV == "" {
		missing = append(missing, `"csv"`)
	}

	if rc.AllowList == "" {
		missing = append(missing, `"ip"`)
	}

	if len(missing) > 0 {
		return fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", "))
	}

	return nil
}

func showConfig(cmd *cobra.Command, cfg *config.Config, configPath string) error {
	slog.Info("active configuration", slog.String("path", configPath))

	yamlBytes, err := cfg.MarshalYAML()
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	yamlConfig := string(yamlBytes)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		err := highlight(cmd.OutOrStdout(), "yaml", yamlConfig)
		if err == nil {
			return nil
		}

		slog.Debug("highlight config", slog.Any("err", err))
	}

	mustN(fmt.Fprint(cmd.OutOrStdout(), yamlConfig))

	return nil
}

func printResult(cmd *cobra.Command, rc *RunArgs, result *qufirewall.Result) {
	out := cmd.OutOrStdout()

	if result.Diff != "" {
		printDiff(cmd, result.Diff)
	}

	if rc.interactive {
		mustN(fmt.Fprintln(out, renderSummary(result, rc.DryRun)))

		return
	}

	mustN(fmt.Fprintf(out, "Added %d rules, skipped %d duplicates.\n", result.Added, result.Skipped))

	switch {
	case rc.DryRun:
		mustN(fmt.Fprintf(out, "Dry run, %s was not written.\n", result.OutPath))

	case result.BackupWritten:
		mustN(fmt.Fprintf(out, "Wrote %s, backup %s (%s).\n",
			result.OutPath, result.BackupPath,
			humanize.Bytes(uint64(result.BackupSize)), //nolint:gosec // G115: file sizes are non-negative.
		))

	case result.BackupPath != "":
		mustN(fmt.Fprintf(out, "Wrote %s, existing backup %s kept.\n", result.OutPath, result.BackupPath))

	default:
		mustN(fmt.Fprintf(out, "Wrote %s.\n", result.OutPath))
	}
}

func printDiff(cmd *cobra.Command, diff string) {
	out := cmd.OutOrStdout()

	if term.IsTerminal(int(os.Stdout.Fd())) {
		err := highlight(out, "diff", diff)
		if err == nil {
			mustN(fmt.Fprintln(out))

			return
		}

		slog.Debug("highlight diff", slog.Any("err", err))
	}

	mustN(fmt.Fprint(out, diff))
	mustN(fmt.Fprintln(out))
}

func waitForEnter(cmd *cobra.Command) {
	mustN(fmt.Fprint(cmd.OutOrStdout(), "Press Enter to close..."))
	_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
}
