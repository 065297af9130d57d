package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/output"
)

var (
	admissionCheckCaller string
	admissionCheckClass  string
	admissionCheckKey    string
	admissionCheckCost   int
	admissionCheckOutput string
)

var admissionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe an admission window",
	Long: `Charge an admission window and report the decision.

The probe spends quota exactly like a job submission, so a denied caller
sees the same retry-after a real request would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(admissionCheckOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		key := strings.TrimSpace(admissionCheckKey)
		if key == "" {
			caller := strings.TrimSpace(admissionCheckCaller)
			class := strings.TrimSpace(admissionCheckClass)
			if caller == "" || class == "" {
				return errors.New("either --key or --caller and --class are required")
			}
			key = core.AdmissionKey(caller, class)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		gate := buildGate(config.GetConfig(), db)
		decision, err := gate.TryAdmit(cmd.Context(), key, admissionCheckCost)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			result := map[string]any{
				"key":       key,
				"allowed":   decision.Allowed,
				"remaining": decision.Remaining,
			}
			if !decision.Allowed {
				result["retry_after_ms"] = decision.RetryAfter.Milliseconds()
			}
			payload, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		lines := []string{"Admission Check", ""}
		if decision.Allowed {
			lines = append(lines, fmt.Sprintf("%s: allowed remaining=%d", key, decision.Remaining))
		} else {
			lines = append(lines, fmt.Sprintf("%s: denied remaining=%d retry_after=%s",
				key, decision.Remaining, decision.RetryAfter.Round(time.Millisecond)))
		}
		_, _ = fmt.Fprint(os.Stdout, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

func init() {
	admissionCheckCmd.Flags().StringVar(&admissionCheckCaller, "caller", "", "Caller identity (combined with --class)")
	admissionCheckCmd.Flags().StringVar(&admissionCheckClass, "class", "", "Operation class (combined with --caller)")
	admissionCheckCmd.Flags().StringVar(&admissionCheckKey, "key", "", "Raw window key (overrides --caller/--class)")
	admissionCheckCmd.Flags().IntVar(&admissionCheckCost, "cost", 1, "Units to charge against the window")
	admissionCheckCmd.Flags().StringVar(&admissionCheckOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
