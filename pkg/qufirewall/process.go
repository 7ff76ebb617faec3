package qufirewall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/nbzz/add-qufirewall-rules/pkg/allowlist"
	"github.com/nbzz/add-qufirewall-rules/pkg/export"
	"github.com/nbzz/add-qufirewall-rules/pkg/log"
)

// Columns QuFirewall exports store rule lists in.
const (
	ColumnRules   = "rules"
	ColumnRulesV6 = "rulesv6"
)

// BackupSuffix is appended to the csv path for in-place backups.
const BackupSuffix = ".bak"

var (
	// ErrNoDataRows reports an export with a header but nothing to update.
	ErrNoDataRows = errors.New("csv has a header but no data rows")

	// ErrColumnMissing reports a header without the targeted rules column.
	ErrColumnMissing = errors.New("column missing from csv header")
)

// Options configures a single [Process] run.
type Options struct {
	// CSVPath is the QuFirewall export to rewrite.
	CSVPath string

	// AllowPath is the newline-delimited allow-list.
	AllowPath string

	// OutPath overrides the derived output path. Ignored in-place.
	OutPath string

	// Template overrides the policy fields of synthesized rules.
	Template *Template

	// InPlace rewrites CSVPath itself, after a backup unless NoBackup.
	InPlace bool

	// NoBackup skips the .bak copy for in-place runs.
	NoBackup bool

	// KeepIDs preserves existing rule ids; only synthesized rules get
	// fresh ones. Otherwise every rule is renumbered sequentially.
	KeepIDs bool

	// V6 targets the rulesv6 column instead of rules.
	V6 bool

	// Diff captures a unified preview of the targeted column.
	Diff bool

	// DryRun computes everything, including the diff, but writes nothing.
	DryRun bool
}

// Result reports a completed run.
type Result struct {
	// OutPath is where the rewritten table went, or would have gone on a
	// dry run.
	OutPath string

	// BackupPath is set for in-place runs with backups enabled; whether a
	// new copy was written is reported by BackupWritten. An existing
	// backup is never overwritten.
	BackupPath    string
	BackupWritten bool
	BackupSize    int64

	// Diff is the unified preview, when one was requested. Empty when the
	// targeted column is unchanged.
	Diff string

	// Added counts allow-list addresses with no pre-existing rule.
	// Skipped counts addresses whose existing rule was reused.
	Added   int
	Skipped int
}

// Process rewrites the export at CSVPath so the allow-list forms a
// contiguous block at the top of the targeted rules column. Only the first
// data row is updated; every other row, field, and column round-trips
// unchanged.
func Process(ctx context.Context, opts Options) (*Result, error) {
	logger := log.WithContext(ctx)

	table, err := export.ReadFile(opts.CSVPath)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "loaded csv",
		slog.String("path", opts.CSVPath),
		slog.Int("columns", len(table.Header)),
		slog.Int("rows", len(table.Rows)),
	)

	addrs, err := allowlist.ReadFile(opts.AllowPath)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "loaded allow list",
		slog.String("path", opts.AllowPath),
		slog.Int("addresses", len(addrs)),
	)

	if len(table.Rows) == 0 {
		return nil, ErrNoDataRows
	}

	column, secondary := ColumnRules, ColumnRulesV6
	if opts.V6 {
		column, secondary = secondary, column
	}

	idx, ok := table.ColumnIndex(column)
	if !ok {
		return nil, fmt.Errorf("%q: %w", column, ErrColumnMissing)
	}

	row := table.Rows[0]

	list, err := DecodeList(column, row[idx])
	if err != nil {
		return nil, err
	}

	maxID := list.MaxID()
	if other, ok := secondaryList(ctx, table, row, secondary); ok {
		if id := other.MaxID(); id > maxID {
			maxID = id
		}
	}

	tmpl := DefaultTemplate()
	if opts.Template != nil {
		tmpl = *opts.Template
	}

	wantDiff := opts.Diff || opts.DryRun

	var before string
	if wantDiff {
		before = diffContent(list.Lines())
	}

	updated, counts := Reorder(list, addrs, tmpl, opts.KeepIDs, maxID)

	logger.DebugContext(ctx, "reordered rules",
		slog.String("column", column),
		slog.Int("added", counts.Added),
		slog.Int("skipped", counts.Skipped),
		slog.Int("rules", len(updated.Items)),
	)

	res := &Result{
		Added:   counts.Added,
		Skipped: counts.Skipped,
		OutPath: resolveOutPath(opts),
	}

	if wantDiff {
		after := diffContent(updated.Lines())
		if after != before {
			res.Diff = udiff.Unified(column, column+" (updated)", before, after)
		}
	}

	row[idx] = updated.Encode()

	if opts.DryRun {
		logger.DebugContext(ctx, "dry run, skipping write", slog.String("path", res.OutPath))

		return res, nil
	}

	if opts.InPlace && !opts.NoBackup {
		res.BackupPath = opts.CSVPath + BackupSuffix

		res.BackupWritten, res.BackupSize, err = backupFile(ctx, opts.CSVPath, res.BackupPath)
		if err != nil {
			return nil, err
		}
	}

	err = table.WriteFile(res.OutPath)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "wrote csv", slog.String("path", res.OutPath))

	return res, nil
}

// secondaryList reads the untargeted rules column for id bookkeeping. It is
// best-effort: a missing column or undecodable content contributes nothing.
func secondaryList(ctx context.Context, table *export.Table, row []string, column string) (*List, bool) {
	idx, ok := table.ColumnIndex(column)
	if !ok {
		return nil, false
	}

	list, err := DecodeList(column, row[idx])
	if err != nil {
		log.WithContext(ctx).DebugContext(ctx, "ignoring unreadable secondary rules column",
			slog.String("column", column),
			slog.Any("error", err),
		)

		return nil, false
	}

	return list, true
}

func resolveOutPath(opts Options) string {
	if opts.InPlace {
		return opts.CSVPath
	}

	if opts.OutPath != "" {
		return opts.OutPath
	}

	return DerivedOutPath(opts.CSVPath, ".updated")
}

// DerivedOutPath inserts suffix between the path's root and extension.
// Paths without an extension get .csv appended after the suffix.
func DerivedOutPath(path, suffix string) string {
	root, ext := splitExt(path)
	if ext == "" {
		ext = ".csv"
	}

	return root + suffix + ext
}

// splitExt splits the final extension off path. A basename consisting only
// of dots before the final dot has no extension.
func splitExt(path string) (string, string) {
	base := filepath.Base(path)

	i := strings.LastIndexByte(base, '.')
	if i <= 0 || strings.Trim(base[:i], ".") == "" {
		return path, ""
	}

	ext := base[i:]

	return strings.TrimSuffix(path, ext), ext
}

// backupFile copies path to backupPath unless one already exists. It reports
// whether a copy was written and its size.
func backupFile(ctx context.Context, path, backupPath string) (bool, int64, error) {
	logger := log.WithContext(ctx)

	_, err := os.Stat(backupPath)
	if err == nil {
		logger.DebugContext(ctx, "backup already exists, keeping it", slog.String("path", backupPath))

		return false, 0, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, 0, fmt.Errorf("stat backup: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return false, 0, fmt.Errorf("open csv for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return false, 0, fmt.Errorf("create backup: %w", err)
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()

		return false, 0, fmt.Errorf("write backup: %w", err)
	}

	err = dst.Close()
	if err != nil {
		return false, 0, fmt.Errorf("close backup: %w", err)
	}

	logger.DebugContext(ctx, "wrote backup",
		slog.String("path", backupPath),
		slog.Int64("bytes", n),
	)

	return true, n, nil
}

func diffContent(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}
