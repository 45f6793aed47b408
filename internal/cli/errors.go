package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jdelfino/steplab/internal/db"
	"github.com/jdelfino/steplab/internal/tracer"
)

// ErrorEnvelope is the JSON/JSONL error response shape.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload carries structured error details.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ExitError carries an exit code and whether output was already printed.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func handleCLIError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Printed {
			return exitErr
		}
		if exitErr.Err != nil {
			err = exitErr.Err
		}
	}

	code, hint, exitCode := classifyError(err)
	if exitErr != nil && exitErr.Code != 0 {
		exitCode = exitErr.Code
	}

	if IsJSONOutput() || IsJSONLOutput() {
		_ = WriteOutput(os.Stdout, ErrorEnvelope{
			Error: ErrorPayload{
				Code:    code,
				Message: err.Error(),
				Hint:    hint,
			},
		})
	} else {
		fmt.Fprintln(os.Stderr, err.Error())
	}

	return &ExitError{
		Code:    exitCode,
		Err:     err,
		Printed: true,
	}
}

func classifyError(err error) (code, hint string, exitCode int) {
	var timeoutErr *tracer.TimeoutError
	var spawnErr *tracer.SpawnError

	switch {
	case errors.As(err, &timeoutErr):
		return "ERR_TIMEOUT", "Reduce the program's work or raise tracer.timeout in config.", 2
	case errors.As(err, &spawnErr):
		return "ERR_SPAWN", "Check tracer.interpreter_path in config (run `steplab doctor`).", 2
	case errors.Is(err, db.ErrTraceNotFound):
		return "ERR_NOT_FOUND", "Run `steplab history` to see archived trace IDs.", 1
	default:
		return "ERR_UNKNOWN", "", 1
	}
}
