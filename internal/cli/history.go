package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdelfino/steplab/internal/db"
)

var (
	historySession string
	historyLimit   int
	pruneKeep      int
)

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "only traces for this session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of traces to list")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyPruneCmd.Flags().IntVar(&pruneKeep, "keep", 100, "number of most recent traces to keep")
	rootCmd.AddCommand(historyCmd)
}

// historySummary is the JSON shape for one archived trace.
type historySummary struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId,omitempty"`
	TotalSteps int       `json:"totalSteps"`
	ExitCode   int       `json:"exitCode"`
	Truncated  bool      `json:"truncated"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived traces",
	Example: `  steplab history
  steplab history --session live-42 --limit 5
  steplab history --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewTraceRepository(database)

		var records []*db.TraceRecord
		if historySession != "" {
			records, err = repo.ListBySession(ctx, historySession, historyLimit)
		} else {
			records, err = repo.ListRecent(ctx, historyLimit)
		}
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			summaries := make([]historySummary, 0, len(records))
			for _, rec := range records {
				summaries = append(summaries, historySummary{
					ID:         rec.ID,
					SessionID:  rec.SessionID,
					TotalSteps: rec.TotalSteps,
					ExitCode:   rec.ExitCode,
					Truncated:  rec.Truncated,
					Error:      rec.Error,
					CreatedAt:  rec.CreatedAt,
				})
			}
			return WriteOutput(os.Stdout, summaries)
		}

		if len(records) == 0 {
			fmt.Println("No archived traces. Record one with `steplab trace`.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSTEPS\tEXIT\tERROR")
		for _, rec := range records {
			errText := rec.Error
			if len(errText) > 40 {
				errText = errText[:37] + "..."
			}
			steps := fmt.Sprintf("%d", rec.TotalSteps)
			if rec.Truncated {
				steps += "+"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				shortID(rec.ID),
				rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				steps,
				rec.ExitCode,
				errText,
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Print one archived trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		rec, err := db.NewTraceRepository(database).Get(ctx, args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, rec.Trace)
		}

		fmt.Printf("id: %s\ncreated: %s\n", rec.ID, rec.CreatedAt.Local().Format(time.RFC3339))
		if rec.SessionID != "" {
			fmt.Printf("session: %s\n", rec.SessionID)
		}
		fmt.Println("code:")
		for _, line := range strings.Split(strings.TrimSuffix(rec.Code, "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
		return printTrace(rec.Trace)
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old traces from the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		removed, err := db.NewTraceRepository(database).Prune(ctx, pruneKeep)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]int{"removed": removed})
		}
		fmt.Printf("Removed %d trace(s), kept the %d most recent.\n", removed, pruneKeep)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
