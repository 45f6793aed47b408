package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"github.com/jdelfino/steplab/internal/db"
	"github.com/jdelfino/steplab/internal/sandbox"
	"github.com/jdelfino/steplab/internal/session"
	"github.com/jdelfino/steplab/internal/trace"
	"github.com/jdelfino/steplab/internal/tracer"
)

// openDatabase opens the archive database and applies pending migrations.
func openDatabase(ctx context.Context) (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(db.Config{
		Path:          cfg.Database.Path,
		MaxOpenConns:  cfg.Database.MaxConnections,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

// buildOrchestrator assembles the trace orchestrator from config: the local
// interpreter when one is configured, and the Docker sandbox when enabled.
func buildOrchestrator() (*tracer.Orchestrator, error) {
	cfg := GetConfig()

	opts := []tracer.Option{
		tracer.WithDefaultMaxSteps(cfg.Tracer.MaxSteps),
	}

	if cfg.Tracer.InterpreterPath != "" {
		runner := tracer.NewLocalRunner(cfg.Tracer.InterpreterPath, cfg.Tracer.InterpreterArgs, cfg.Tracer.Timeout)
		opts = append(opts, tracer.WithLocalRunner(runner))
	}

	if cfg.Sandbox.Enabled {
		docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		backend := sandbox.NewDocker(docker, cfg.Sandbox.Image,
			sandbox.WithContainerPrefix(cfg.Sandbox.ContainerPrefix),
			sandbox.WithTimeout(cfg.Sandbox.Timeout),
			sandbox.WithMemoryLimitMB(cfg.Sandbox.MemoryLimitMB),
		)
		opts = append(opts, tracer.WithSandbox(backend))
	}

	return tracer.New(opts...), nil
}

// archivingRequester wraps a TraceRequester and records every successful
// trace in the archive. Archiving is best-effort; failures are logged and
// never affect the request.
type archivingRequester struct {
	inner     session.TraceRequester
	repo      *db.TraceRepository
	maxTraces int
}

func newArchivingRequester(inner session.TraceRequester, repo *db.TraceRepository, maxTraces int) *archivingRequester {
	return &archivingRequester{inner: inner, repo: repo, maxTraces: maxTraces}
}

func (a *archivingRequester) RequestTrace(ctx context.Context, code string, opts tracer.Options, reqctx tracer.RequestContext) (*trace.ExecutionTrace, error) {
	tr, err := a.inner.RequestTrace(ctx, code, opts, reqctx)
	if err != nil || tr == nil {
		return tr, err
	}
	a.archive(ctx, code, opts.Stdin, reqctx.SessionID, tr)
	return tr, nil
}

func (a *archivingRequester) archive(ctx context.Context, code, stdin, sessionID string, tr *trace.ExecutionTrace) {
	// Archiving must not be cancelled along with a superseded request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rec := &db.TraceRecord{
		SessionID: sessionID,
		Code:      code,
		Stdin:     stdin,
		Trace:     tr,
	}
	if err := a.repo.Create(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("failed to archive trace")
		return
	}
	if a.maxTraces > 0 {
		if _, err := a.repo.Prune(ctx, a.maxTraces); err != nil {
			logger.Warn().Err(err).Msg("failed to prune trace archive")
		}
	}
	logger.Debug().Str("trace_id", rec.ID).Msg("archived trace")
}
