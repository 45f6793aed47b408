package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdelfino/steplab/internal/db"
	"github.com/jdelfino/steplab/internal/trace"
	"github.com/jdelfino/steplab/internal/tracer"
)

var (
	replayLast bool
	replayFile string
)

func init() {
	replayCmd.Flags().BoolVar(&replayLast, "last", false, "replay the most recent archived trace")
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "replay a trace JSON document from a file")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay [trace-id]",
	Short: "Open the step-through debugger on a recorded trace",
	Long: `Replay opens the debugger on a trace that was already recorded,
without re-running the program. The trace comes from the archive
(by ID or --last) or from a JSON file (--file).`,
	Example: `  steplab replay 4fa2c1d8-...
  steplab replay --last
  steplab replay --file trace.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		code, tr, err := loadReplayTrace(ctx, args)
		if err != nil {
			return err
		}
		if tr.TotalSteps == 0 {
			if tr.Error != "" {
				return fmt.Errorf("trace has no steps: %s", tr.Error)
			}
			return fmt.Errorf("trace has no steps")
		}

		return runDebugger(ctx, storedTrace{trace: tr}, code, tracer.Options{}, "")
	},
}

func loadReplayTrace(ctx context.Context, args []string) (string, *trace.ExecutionTrace, error) {
	if replayFile != "" {
		data, err := os.ReadFile(replayFile)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read trace file: %w", err)
		}
		tr, err := trace.Parse(data)
		if err != nil {
			return "", nil, fmt.Errorf("invalid trace document: %w", err)
		}
		return "", tr, nil
	}

	database, err := openDatabase(ctx)
	if err != nil {
		return "", nil, err
	}
	defer database.Close()
	repo := db.NewTraceRepository(database)

	var rec *db.TraceRecord
	switch {
	case replayLast:
		records, err := repo.ListRecent(ctx, 1)
		if err != nil {
			return "", nil, err
		}
		if len(records) == 0 {
			return "", nil, fmt.Errorf("archive is empty, record one with `steplab trace`")
		}
		rec, err = repo.Get(ctx, records[0].ID)
		if err != nil {
			return "", nil, err
		}
	case len(args) == 1:
		rec, err = repo.Get(ctx, args[0])
		if err != nil {
			return "", nil, err
		}
	default:
		return "", nil, fmt.Errorf("a trace ID, --last, or --file is required")
	}

	return rec.Code, rec.Trace, nil
}

// storedTrace satisfies session.TraceRequester with an already-recorded
// trace, so the debugger's loading path works unchanged.
type storedTrace struct {
	trace *trace.ExecutionTrace
}

func (s storedTrace) RequestTrace(context.Context, string, tracer.Options, tracer.RequestContext) (*trace.ExecutionTrace, error) {
	return s.trace, nil
}
