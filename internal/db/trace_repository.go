package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jdelfino/steplab/internal/trace"
)

// Trace repository errors.
var (
	ErrTraceNotFound      = errors.New("trace not found")
	ErrTraceAlreadyExists = errors.New("trace already exists")
)

// TraceRecord is an archived trace run: the inputs that produced it plus
// summary columns and the full trace document.
type TraceRecord struct {
	ID         string
	SessionID  string
	Code       string
	Stdin      string
	ExitCode   int
	TotalSteps int
	Truncated  bool
	Error      string
	Trace      *trace.ExecutionTrace
	CreatedAt  time.Time
}

// TraceRepository handles archived-trace persistence.
type TraceRepository struct {
	db *DB
}

// NewTraceRepository creates a new TraceRepository.
func NewTraceRepository(db *DB) *TraceRepository {
	return &TraceRepository{db: db}
}

// Create archives a trace run. Summary columns are derived from the trace
// so listings never need to decode the full document.
func (r *TraceRepository) Create(ctx context.Context, rec *TraceRecord) error {
	if rec.Trace == nil {
		return fmt.Errorf("trace record has no trace")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.ExitCode = rec.Trace.ExitCode
	rec.TotalSteps = rec.Trace.TotalSteps
	rec.Truncated = rec.Trace.Truncated
	rec.Error = rec.Trace.Error

	traceJSON, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	truncated := 0
	if rec.Truncated {
		truncated = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO traces (id, session_id, code, stdin, exit_code, total_steps, truncated, error, trace_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.SessionID,
		rec.Code,
		rec.Stdin,
		rec.ExitCode,
		rec.TotalSteps,
		truncated,
		rec.Error,
		string(traceJSON),
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTraceAlreadyExists
		}
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	return nil
}

// Get retrieves an archived trace by ID, including the full document.
func (r *TraceRepository) Get(ctx context.Context, id string) (*TraceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, code, stdin, exit_code, total_steps, truncated, error, trace_json, created_at
		FROM traces WHERE id = ?
	`, id)
	return r.scanTrace(row, true)
}

// ListBySession returns summaries for a session, newest first. The trace
// document itself is not loaded.
func (r *TraceRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*TraceRecord, error) {
	return r.list(ctx, `
		SELECT id, session_id, code, stdin, exit_code, total_steps, truncated, error, '', created_at
		FROM traces
		WHERE session_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, sessionID, limit)
}

// ListRecent returns the most recent summaries across all sessions.
func (r *TraceRepository) ListRecent(ctx context.Context, limit int) ([]*TraceRecord, error) {
	return r.list(ctx, `
		SELECT id, session_id, code, stdin, exit_code, total_steps, truncated, error, '', created_at
		FROM traces
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
}

// Count returns the number of archived traces.
func (r *TraceRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM traces`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count traces: %w", err)
	}
	return n, nil
}

// Delete removes an archived trace.
func (r *TraceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM traces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTraceNotFound
	}
	return nil
}

// Prune deletes the oldest traces beyond keep, returning how many were
// removed.
func (r *TraceRepository) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM traces WHERE id NOT IN (
			SELECT id FROM traces ORDER BY created_at DESC, id LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune traces: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *TraceRepository) list(ctx context.Context, query string, args ...any) ([]*TraceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	records := make([]*TraceRecord, 0)
	for rows.Next() {
		rec, err := r.scanTrace(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *TraceRepository) scanTrace(scanner interface{ Scan(...any) error }, withDocument bool) (*TraceRecord, error) {
	var (
		id         string
		sessionID  string
		code       string
		stdin      string
		exitCode   int
		totalSteps int
		truncated  int
		errText    string
		traceJSON  string
		createdAt  string
	)

	if err := scanner.Scan(&id, &sessionID, &code, &stdin, &exitCode, &totalSteps, &truncated, &errText, &traceJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTraceNotFound
		}
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}

	rec := &TraceRecord{
		ID:         id,
		SessionID:  sessionID,
		Code:       code,
		Stdin:      stdin,
		ExitCode:   exitCode,
		TotalSteps: totalSteps,
		Truncated:  truncated == 1,
		Error:      errText,
	}

	if withDocument && traceJSON != "" {
		tr, err := trace.Parse([]byte(traceJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to decode archived trace %s: %w", id, err)
		}
		rec.Trace = tr
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}

	return rec, nil
}
