package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/store"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/output"
)

var (
	admissionListOutput string
	admissionListOut    string
	admissionListOutDir string
	admissionListAll    bool
	admissionListKey    string
	admissionListPrefix string
)

var admissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored admission windows",
	Long:  "List admission window counters with the configured limit and reset time for each key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(admissionListOutput)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cfg := config.GetConfig()

		query := store.WindowQuery{
			All:    admissionListAll,
			Key:    strings.TrimSpace(admissionListKey),
			Prefix: strings.TrimSpace(admissionListPrefix),
		}
		if !query.All && query.Key == "" && query.Prefix == "" {
			query.All = true
		}

		states, err := db.ListWindows(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath := strings.TrimSpace(admissionListOut)
		outDir := strings.TrimSpace(admissionListOutDir)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("admission.list.%s", ext))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		gate := buildGate(cfg, db)
		views := make([]output.WindowView, 0, len(states))
		for _, state := range states {
			limit := gate.LimitFor(core.ClassFromKey(state.Key))
			views = append(views, output.NewWindowView(state, limit.Requests, limit.Window))
		}

		rendered, err := output.NewFormatter(format).FormatWindows(views)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	admissionListCmd.Flags().StringVar(&admissionListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	admissionListCmd.Flags().StringVar(&admissionListOut, "out", "", "Write output to a file (default stdout)")
	admissionListCmd.Flags().StringVar(&admissionListOutDir, "out-dir", "", "Write output to a directory")
	admissionListCmd.Flags().BoolVar(&admissionListAll, "all", false, "List all window keys")
	admissionListCmd.Flags().StringVar(&admissionListKey, "key", "", "List a single key (exact match)")
	admissionListCmd.Flags().StringVar(&admissionListPrefix, "prefix", "", "List keys with matching prefix")
}
