package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/engine"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/output"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/synthlink/encode"
)

// maxInputBytes bounds @file payloads. Provider payloads are small JSON
// documents, not media uploads.
const maxInputBytes = 1 << 20

// statusPollInterval paces the in-process wait for a terminal state once the
// synchronous wait window has passed.
const statusPollInterval = 200 * time.Millisecond

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Submit a synthesis job and wait for the result",
	Long: `Submit one synthesis job through the in-process pipeline and wait for it
to finish.

The payload comes from --input (inline JSON or @file) or from a named
preset; --set overrides individual preset payload fields. Admission,
submission retries, provider polling and the completion deadline behave
exactly as they do under the server. The command exits non-zero when the
job ends in any state other than succeeded.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("caller", "cli", "Caller identity charged for admission")
	generateCmd.Flags().String("class", "", "Operation class (required with --input)")
	generateCmd.Flags().String("input", "", "Job payload: inline JSON or @file")
	generateCmd.Flags().String("preset", "", "Preset slug providing class and payload")
	generateCmd.Flags().StringArray("set", nil, "Preset payload override (key=value, repeatable)")
	generateCmd.Flags().Duration("deadline", 0, "Completion deadline (default: configured orchestrator default)")
	generateCmd.Flags().Int("cost", 0, "Admission cost (default: preset cost, then 1)")
	generateCmd.Flags().String("format", "table", "Output format: table, json, markdown")
	generateCmd.Flags().String("out", "", "Write the job record to a file (default stdout)")
	generateCmd.Flags().String("out-dir", "", "Write the job record to a directory")
	generateCmd.Flags().String("audio-out", "", "Decode an inline audio result to this file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	caller, err := cmd.Flags().GetString("caller")
	if err != nil {
		return err
	}
	class, err := cmd.Flags().GetString("class")
	if err != nil {
		return err
	}
	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return err
	}
	presetSlug, err := cmd.Flags().GetString("preset")
	if err != nil {
		return err
	}
	setPairs, err := cmd.Flags().GetStringArray("set")
	if err != nil {
		return err
	}
	deadlineIn, err := cmd.Flags().GetDuration("deadline")
	if err != nil {
		return err
	}
	cost, err := cmd.Flags().GetInt("cost")
	if err != nil {
		return err
	}
	formatValue, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	audioOut, err := cmd.Flags().GetString("audio-out")
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	startedAt := time.Now()
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally

	cfg := config.GetConfig()
	if cfg == nil {
		return errors.New("config not loaded")
	}

	jobClass, payload, jobCost, err := resolveJobInput(cfg, class, input, presetSlug, setPairs, cost)
	if err != nil {
		return err
	}

	orch, _ := buildOrchestrator(cfg, db)
	defer shutdownOrchestrator(orch)

	req := &core.JobRequest{
		Caller:  strings.TrimSpace(caller),
		Class:   jobClass,
		Payload: payload,
		Cost:    jobCost,
	}
	if deadlineIn > 0 {
		req.Deadline = time.Now().UTC().Add(deadlineIn)
	}
	// Ride the synchronous wait for as long as the orchestrator allows;
	// anything past its cap is covered by the status poll below.
	req.Wait = cfg.Orchestrator.SyncWaitCap
	if req.Wait <= 0 {
		req.Wait = engine.DefaultSyncWaitCap
	}

	job, err := orch.RequestJob(ctx, req)
	if err != nil {
		return err
	}

	observability.CLILogger.Info("Job accepted",
		zap.String("handle", job.Handle),
		zap.String("class", job.Class),
		zap.Time("deadline", job.Deadline),
	)

	job, err = awaitTerminal(ctx, orch, job)
	if err != nil {
		return err
	}

	if outDir != "" {
		outDir, err = ensureOutDir(outDir)
		if err != nil {
			return err
		}
		outPath = filepath.Join(outDir, fmt.Sprintf("generate.%s.%s", sanitizeFilename(job.Class), outputExtension(format)))
	}
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.NewFormatter(format).FormatJob(job)
	if err != nil {
		return err
	}
	if rendered != "" {
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			return err
		}
	}

	if strings.TrimSpace(audioOut) != "" {
		if job.State == core.StateSucceeded {
			if err := writeAudioResult(strings.TrimSpace(audioOut), job.Result); err != nil {
				return err
			}
		} else {
			observability.CLILogger.Warn("Skipping audio output", zap.String("state", string(job.State)))
		}
	}

	if format != output.FormatJSON {
		observability.CLILogger.Info("Job finished",
			zap.String("state", string(job.State)),
			zap.Duration("elapsed", time.Since(startedAt)),
		)
	}

	if job.State != core.StateSucceeded {
		if job.Error != nil {
			return job.Error
		}
		return fmt.Errorf("job finished %s", job.State)
	}
	return nil
}

// resolveJobInput produces the class, payload and admission cost for one job
// from either a caller-supplied payload or a named preset.
func resolveJobInput(cfg *config.Config, class, input, presetSlug string, setPairs []string, cost int) (string, json.RawMessage, int, error) {
	input = strings.TrimSpace(input)
	presetSlug = strings.TrimSpace(presetSlug)
	class = strings.TrimSpace(class)

	switch {
	case input == "" && presetSlug == "":
		return "", nil, 0, errors.New("either --input or --preset is required")
	case input != "" && presetSlug != "":
		return "", nil, 0, errors.New("--input and --preset are mutually exclusive")
	}

	if presetSlug != "" {
		if class != "" {
			return "", nil, 0, errors.New("--class comes from the preset")
		}
		overrides, err := parseOverrides(setPairs)
		if err != nil {
			return "", nil, 0, err
		}
		registry, err := buildPresetRegistry(cfg)
		if err != nil {
			return "", nil, 0, fmt.Errorf("loading presets: %w", err)
		}
		p, err := registry.Get(presetSlug)
		if err != nil {
			return "", nil, 0, err
		}
		payload, err := p.BuildPayload(overrides)
		if err != nil {
			return "", nil, 0, err
		}
		if cost == 0 {
			cost = p.Config.Cost
		}
		return p.Config.Class, payload, cost, nil
	}

	if len(setPairs) > 0 {
		return "", nil, 0, errors.New("--set requires --preset")
	}
	if class == "" {
		return "", nil, 0, errors.New("--class is required with --input")
	}
	payload, err := readPayloadInput(input)
	if err != nil {
		return "", nil, 0, err
	}
	return class, payload, cost, nil
}

// readPayloadInput loads the job payload from an inline JSON string or, with
// a leading @, from a file.
func readPayloadInput(value string) (json.RawMessage, error) {
	raw := []byte(value)
	if strings.HasPrefix(value, "@") {
		path := strings.TrimSpace(value[1:])
		if path == "" {
			return nil, errors.New("input file path is empty")
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if info.Size() > maxInputBytes {
			return nil, fmt.Errorf("input file exceeds %d bytes", maxInputBytes)
		}
		raw, err = os.ReadFile(path) // #nosec G304 -- Input path is user-provided
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
	}
	if !json.Valid(raw) {
		return nil, errors.New("input is not valid JSON")
	}
	return raw, nil
}

func parseOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// awaitTerminal watches the in-process job table until the job settles. The
// orchestrator enforces the deadline, so the loop always observes a terminal
// snapshot; that final fetch is the one result delivery.
func awaitTerminal(ctx context.Context, orch *engine.Orchestrator, job *core.Job) (*core.Job, error) {
	if job.State.Terminal() {
		return job, nil
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			snap, err := orch.GetStatus(ctx, job.Handle)
			if err != nil {
				return nil, err
			}
			if snap.State.Terminal() {
				return snap, nil
			}
		}
	}
}

func shutdownOrchestrator(orch *engine.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		observability.CLILogger.Warn("Orchestrator shutdown incomplete", zap.Error(err))
	}
}

// writeAudioResult decodes an inline audio envelope to disk, unwrapping the
// debug raw-capture wrapper when present.
func writeAudioResult(path string, result json.RawMessage) error {
	if len(result) == 0 {
		return errors.New("job carries no result payload")
	}

	payload := []byte(result)
	var wrapper struct {
		Output     json.RawMessage `json:"output"`
		RawCapture json.RawMessage `json:"raw_capture"`
	}
	if err := json.Unmarshal(result, &wrapper); err == nil && len(wrapper.RawCapture) > 0 && len(wrapper.Output) > 0 {
		payload = wrapper.Output
	}

	audio, contentType, err := encode.DecodeAudioPayload(payload)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}

	observability.CLILogger.Info("Wrote audio result",
		zap.String("path", path),
		zap.Int("bytes", len(audio)),
		zap.String("content_type", contentType),
	)
	return nil
}
