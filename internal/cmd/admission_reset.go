package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/store"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/output"
)

var (
	admissionResetAll    bool
	admissionResetKey    string
	admissionResetPrefix string
	admissionResetYes    bool
	admissionResetDryRun bool
	admissionResetOutput string
	admissionResetOut    string
	admissionResetOutDir string
)

var admissionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored admission windows",
	Long:  "Delete admission window counters so the affected keys start a fresh window on their next request.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(admissionResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.WindowQuery{
			All:    admissionResetAll,
			Key:    strings.TrimSpace(admissionResetKey),
			Prefix: strings.TrimSpace(admissionResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !admissionResetYes && !admissionResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(admissionResetOut)
		outDir := strings.TrimSpace(admissionResetOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		ext := outputExtension(format)
		if outDir != "" {
			var err error
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("admission.reset.%s", ext))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if admissionResetDryRun {
			return writeAdmissionResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeAdmissionResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeAdmissionResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d admission window(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d admission window(s)\n", deleted, matched)
	return err
}

func init() {
	admissionResetCmd.Flags().BoolVar(&admissionResetAll, "all", false, "Reset all window keys")
	admissionResetCmd.Flags().StringVar(&admissionResetKey, "key", "", "Reset a single key (exact match)")
	admissionResetCmd.Flags().StringVar(&admissionResetPrefix, "prefix", "", "Reset keys with matching prefix")
	admissionResetCmd.Flags().BoolVar(&admissionResetYes, "yes", false, "Confirm destructive reset")
	admissionResetCmd.Flags().BoolVar(&admissionResetDryRun, "dry-run", false, "Show what would be deleted")
	admissionResetCmd.Flags().StringVar(&admissionResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	admissionResetCmd.Flags().StringVar(&admissionResetOut, "out", "", "Write output to a file (default stdout)")
	admissionResetCmd.Flags().StringVar(&admissionResetOutDir, "out-dir", "", "Write output to a directory")
}
