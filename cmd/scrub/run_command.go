package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scrub/internal/config"
	"scrub/internal/dispatch"
	"scrub/internal/linklog"
	"scrub/internal/logging"
	"scrub/internal/naming"
	"scrub/internal/record"
)

func newRunCommand(configFlag *string) *cobra.Command {
	var (
		inputDir   string
		outputDir  string
		linkLogDir string
		spaceGB    float64
		grouping   string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "De-identify a record tree into the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(strings.TrimSpace(*configFlag))
			if err != nil {
				return err
			}
			if inputDir != "" {
				cfg.Paths.InputDir = inputDir
			}
			if outputDir != "" {
				cfg.Paths.OutputDir = outputDir
			}
			if linkLogDir != "" {
				cfg.Paths.LinkLogDir = linkLogDir
			}
			if cmd.Flags().Changed("space") {
				cfg.Pipeline.SpaceBudgetGB = spaceGB
			}
			if grouping != "" {
				// The flag accepts the historical short forms (s/m/n);
				// canonicalize before validation.
				parsed, err := naming.ParseGrouping(grouping)
				if err != nil {
					return err
				}
				cfg.Pipeline.Grouping = string(parsed)
			}
			if cmd.Flags().Changed("workers") {
				cfg.Pipeline.Workers = workers
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			return runPipeline(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "d", "", "Directory containing the records to de-identify")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory receiving the de-identified copies")
	cmd.Flags().StringVarP(&linkLogDir, "linklog", "l", "", "Directory holding the link log")
	cmd.Flags().Float64VarP(&spaceGB, "space", "s", 0, "Output space budget in gigabytes")
	cmd.Flags().StringVarP(&grouping, "group", "g", "", "Output layout: study, patient, or none")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel workers (0 selects the CPU count)")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	log, err := linklog.Open(cfg.Paths.LinkLogDir, logger)
	if err != nil {
		if errors.Is(err, linklog.ErrLocked) {
			return fmt.Errorf("link log %s is in use by another run", cfg.Paths.LinkLogDir)
		}
		return fmt.Errorf("open link log: %w", err)
	}
	defer log.Close()

	codec := record.NewCodec()
	dispatcher, err := dispatch.New(cfg, log, codec, codec, logger)
	if err != nil {
		return err
	}

	summary, err := dispatcher.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", logging.Error(err))
	}
	printSummary(cmd, summary)

	switch summary.Outcome {
	case dispatch.OutcomeFailedFatal:
		if err != nil {
			return err
		}
		return errors.New("run failed: link log is no longer trustworthy")
	case dispatch.OutcomeCanceled:
		return context.Canceled
	case dispatch.OutcomeHaltedOnSpace:
		fmt.Fprintf(cmd.OutOrStdout(), "Run halted: %s. Re-run with a larger budget to process the remaining files.\n", summary.HaltReason)
		return nil
	default:
		return err
	}
}

func printSummary(cmd *cobra.Command, summary dispatch.Summary) {
	out := cmd.OutOrStdout()

	rows := [][]string{
		{"Outcome", string(summary.Outcome)},
		{"Files found", formatCount(summary.TotalFiles)},
		{"Processed", formatCount(summary.Processed)},
		{"Skipped (existing)", formatCount(summary.SkippedExisting)},
		{"Skipped (missing identifiers)", formatCount(summary.SkippedMissingID)},
		{"Skipped (unreadable)", formatCount(summary.SkippedUnreadable)},
		{"Write failures", formatCount(summary.WriteFailures)},
		{"Remaining", formatCount(summary.Remaining)},
		{"Bytes written", formatCount(summary.BytesWritten)},
		{"Space budget", formatCount(summary.BudgetBytes)},
	}
	if summary.HaltReason != "" {
		rows = append(rows, []string{"Halt reason", summary.HaltReason})
	}

	if isTerminal(out) {
		fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
		return
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%s: %s\n", row[0], row[1])
	}
}

func formatCount(value int64) string {
	return strconv.FormatInt(value, 10)
}
