package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelfino/steplab/internal/db"
	"github.com/jdelfino/steplab/internal/debugtui"
	"github.com/jdelfino/steplab/internal/events"
	"github.com/jdelfino/steplab/internal/session"
	"github.com/jdelfino/steplab/internal/trace"
	"github.com/jdelfino/steplab/internal/tracer"
)

var (
	traceStdinFile   string
	traceMaxSteps    int
	traceSessionID   string
	traceInteractive bool
	traceNoArchive   bool
)

func init() {
	traceCmd.Flags().StringVarP(&traceStdinFile, "input", "i", "", "file with stdin for the traced program")
	traceCmd.Flags().IntVar(&traceMaxSteps, "max-steps", 0, "step cap for this trace (default from config)")
	traceCmd.Flags().StringVar(&traceSessionID, "session", "", "live-session ID (enables the sandbox backend)")
	traceCmd.Flags().BoolVarP(&traceInteractive, "debug", "d", false, "open the step-through debugger on the result")
	traceCmd.Flags().BoolVar(&traceNoArchive, "no-archive", false, "do not record this trace in the archive")
	rootCmd.AddCommand(traceCmd)
}

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Record an execution trace of a program",
	Long: `Trace runs a program under the instrumented interpreter and records
every executed step: line number, variables, call stack, and output.

The program is read from the given file, or from stdin when the file
is "-". Program input (what the program reads from stdin) comes from
--input.`,
	Example: `  steplab trace program.py
  steplab trace program.py --input testdata.txt
  steplab trace program.py -d
  cat program.py | steplab trace -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		code, err := readSource(args[0])
		if err != nil {
			return err
		}

		stdin := ""
		if traceStdinFile != "" {
			data, err := os.ReadFile(traceStdinFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			stdin = string(data)
		}

		orch, err := buildOrchestrator()
		if err != nil {
			return err
		}

		requester, closeDB := maybeArchive(ctx, orch)
		defer closeDB()

		opts := tracer.Options{Stdin: stdin, MaxSteps: traceMaxSteps}

		if traceInteractive {
			return runDebugger(ctx, requester, code, opts, traceSessionID)
		}

		tr, err := requester.RequestTrace(ctx, code, opts, tracer.RequestContext{SessionID: traceSessionID})
		if err != nil {
			return err
		}
		return printTrace(tr)
	},
}

// maybeArchive wraps the orchestrator so completed traces land in the
// archive, unless archiving is off. The returned func closes the database.
func maybeArchive(ctx context.Context, orch *tracer.Orchestrator) (session.TraceRequester, func()) {
	cfg := GetConfig()
	if traceNoArchive || !cfg.Archive.Enabled {
		return orch, func() {}
	}

	database, err := openDatabase(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("archive unavailable, tracing without it")
		return orch, func() {}
	}

	repo := db.NewTraceRepository(database)
	return newArchivingRequester(orch, repo, cfg.Archive.MaxTraces), func() { database.Close() }
}

// runDebugger loads one trace through a session controller and opens the
// interactive debugger over it.
func runDebugger(ctx context.Context, requester session.TraceRequester, code string, opts tracer.Options, sessionID string) error {
	ctrl := session.NewController(requester,
		session.WithSessionID(sessionID),
		session.WithPublisher(events.NewLogPublisher()),
	)
	if err := ctrl.RequestTrace(ctx, code, opts); err != nil {
		return err
	}
	return debugtui.Run(ctrl, debugtui.Config{Code: code, Stdin: opts.Stdin})
}

func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read program from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read program: %w", err)
	}
	return string(data), nil
}

// printTrace writes the trace as JSON, or as a human summary.
func printTrace(tr *trace.ExecutionTrace) error {
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, tr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "steps: %d", tr.TotalSteps)
	if tr.Truncated {
		b.WriteString(" (truncated)")
	}
	fmt.Fprintf(&b, "\nexit code: %d\n", tr.ExitCode)
	if tr.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", tr.Error)
	}
	if out := tr.FinalStdout(); out != "" {
		b.WriteString("output:\n")
		for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	_, err := fmt.Fprint(os.Stdout, b.String())
	return err
}
