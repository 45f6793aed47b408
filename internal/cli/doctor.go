package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
)

// DoctorCheckStatus indicates the result of a diagnostic check.
type DoctorCheckStatus string

const (
	DoctorPass DoctorCheckStatus = "pass"
	DoctorWarn DoctorCheckStatus = "warn"
	DoctorFail DoctorCheckStatus = "fail"
	DoctorSkip DoctorCheckStatus = "skip"
)

// DoctorCheck represents a single diagnostic result.
type DoctorCheck struct {
	Category string            `json:"category"`
	Name     string            `json:"name"`
	Status   DoctorCheckStatus `json:"status"`
	Details  string            `json:"details,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// DoctorReport aggregates diagnostic results.
type DoctorReport struct {
	Checks    []DoctorCheck `json:"checks"`
	Summary   DoctorSummary `json:"summary"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DoctorSummary provides a quick overview.
type DoctorSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run environment diagnostics",
	Long: `Run diagnostics on your Steplab environment.

Checks include:
- Configuration: config file validity
- Tracer: instrumented interpreter availability
- Database: archive accessibility and schema
- Sandbox: Docker daemon connectivity (when enabled)`,
	Example: `  steplab doctor
  steplab doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		checks := make([]DoctorCheck, 0)
		checks = append(checks, checkConfiguration())
		checks = append(checks, checkInterpreter())
		checks = append(checks, checkDatabase(ctx)...)
		checks = append(checks, checkSandbox(ctx))

		report := &DoctorReport{
			Checks:    checks,
			Summary:   buildSummary(checks),
			CheckedAt: time.Now().UTC(),
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, report)
		}

		printDoctorReport(report)

		if report.Summary.Failed > 0 {
			return &ExitError{Code: 1, Printed: true}
		}
		return nil
	},
}

func checkConfiguration() DoctorCheck {
	check := DoctorCheck{Category: "config", Name: "configuration"}
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		check.Status = DoctorFail
		check.Error = err.Error()
		return check
	}
	check.Status = DoctorPass
	if used := configLoader.ConfigFileUsed(); used != "" {
		check.Details = used
	} else {
		check.Details = "defaults (no config file)"
	}
	return check
}

func checkInterpreter() DoctorCheck {
	check := DoctorCheck{Category: "tracer", Name: "interpreter"}
	cfg := GetConfig()

	if cfg.Tracer.InterpreterPath == "" {
		check.Status = DoctorWarn
		check.Details = "no interpreter configured, local tracing disabled"
		return check
	}

	path, err := exec.LookPath(cfg.Tracer.InterpreterPath)
	if err != nil {
		check.Status = DoctorFail
		check.Error = fmt.Sprintf("%s not found in PATH", cfg.Tracer.InterpreterPath)
		return check
	}
	check.Status = DoctorPass
	check.Details = path
	return check
}

func checkDatabase(ctx context.Context) []DoctorCheck {
	open := DoctorCheck{Category: "database", Name: "archive"}

	database, err := openDatabase(ctx)
	if err != nil {
		open.Status = DoctorFail
		open.Error = err.Error()
		return []DoctorCheck{open}
	}
	defer database.Close()

	open.Status = DoctorPass
	open.Details = GetConfig().Database.Path

	schema := DoctorCheck{Category: "database", Name: "schema"}
	version, err := database.SchemaVersion(ctx)
	if err != nil {
		schema.Status = DoctorFail
		schema.Error = err.Error()
	} else {
		schema.Status = DoctorPass
		schema.Details = fmt.Sprintf("version %d", version)
	}

	return []DoctorCheck{open, schema}
}

func checkSandbox(ctx context.Context) DoctorCheck {
	check := DoctorCheck{Category: "sandbox", Name: "docker"}
	cfg := GetConfig()

	if !cfg.Sandbox.Enabled {
		check.Status = DoctorSkip
		check.Details = "sandbox disabled"
		return check
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		check.Status = DoctorFail
		check.Error = err.Error()
		return check
	}
	defer docker.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := docker.Ping(pingCtx); err != nil {
		check.Status = DoctorFail
		check.Error = err.Error()
		return check
	}

	check.Status = DoctorPass
	check.Details = cfg.Sandbox.Image
	return check
}

func buildSummary(checks []DoctorCheck) DoctorSummary {
	summary := DoctorSummary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case DoctorPass:
			summary.Passed++
		case DoctorWarn:
			summary.Warnings++
		case DoctorFail:
			summary.Failed++
		case DoctorSkip:
			summary.Skipped++
		}
	}
	return summary
}

func printDoctorReport(report *DoctorReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCHECK\tSTATUS\tDETAILS")
	for _, check := range report.Checks {
		details := check.Details
		if check.Error != "" {
			details = check.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", check.Category, check.Name, check.Status, details)
	}
	w.Flush()

	fmt.Printf("\n%d checks: %d passed, %d warnings, %d failed, %d skipped\n",
		report.Summary.Total, report.Summary.Passed, report.Summary.Warnings,
		report.Summary.Failed, report.Summary.Skipped)
}
