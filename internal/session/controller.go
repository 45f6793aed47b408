package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdelfino/steplab/internal/events"
	"github.com/jdelfino/steplab/internal/logging"
	"github.com/jdelfino/steplab/internal/trace"
	"github.com/jdelfino/steplab/internal/tracer"
)

// ErrSuperseded is returned from RequestTrace when a newer request started
// before this one finished; the late result has been discarded.
var ErrSuperseded = errors.New("trace request superseded by a newer request")

// TraceRequester produces execution traces. *tracer.Orchestrator satisfies it.
type TraceRequester interface {
	RequestTrace(ctx context.Context, code string, opts tracer.Options, reqctx tracer.RequestContext) (*trace.ExecutionTrace, error)
}

// Snapshot is an immutable view of the controller for rendering. Trace is
// only set in PhaseReady; RequestErr only after a failed load.
type Snapshot struct {
	Phase            Phase
	Trace            *trace.ExecutionTrace
	CurrentStepIndex int
	RequestErr       error
}

// Controller owns one debug session: a single in-flight trace request at a
// time (last request wins) and clamped navigation over the loaded trace.
// Navigation is synchronous and never fails; moving past either boundary
// is a no-op.
type Controller struct {
	mu        sync.Mutex
	requester TraceRequester
	publisher events.Publisher
	logger    zerolog.Logger
	sessionID string

	phase      Phase
	trace      *trace.ExecutionTrace
	current    int
	requestErr error

	generation     uint64
	cancelInFlight context.CancelFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSessionID attaches a live-session identity, making the sandbox
// backend eligible for this session's requests.
func WithSessionID(id string) ControllerOption {
	return func(c *Controller) {
		c.sessionID = id
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) ControllerOption {
	return func(c *Controller) {
		c.publisher = p
	}
}

// NewController creates an idle controller.
func NewController(requester TraceRequester, opts ...ControllerOption) *Controller {
	c := &Controller{
		requester: requester,
		logger:    logging.Component("session"),
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:            c.phase,
		Trace:            c.trace,
		CurrentStepIndex: c.current,
		RequestErr:       c.requestErr,
	}
}

// RequestTrace runs one trace request to completion and applies the result.
// It blocks for the duration of the request, so callers run it in its own
// goroutine. A request started while another is in flight supersedes it:
// the older request's context is cancelled and its result, should it still
// arrive, is discarded. Returns ErrSuperseded for the losing request, the
// orchestration error for a failed request, and nil once the controller is
// Ready.
func (c *Controller) RequestTrace(ctx context.Context, code string, opts tracer.Options) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.cancelInFlight != nil {
		c.cancelInFlight()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancelInFlight = cancel
	c.trace = nil
	c.requestErr = nil
	c.transitionLocked(PhaseLoading, "trace requested")
	c.publishLocked(events.TypeTraceRequested, nil)
	c.mu.Unlock()

	tr, err := c.requester.RequestTrace(reqCtx, code, opts, tracer.RequestContext{SessionID: c.sessionID})

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		cancel()
		return ErrSuperseded
	}
	cancel()
	c.cancelInFlight = nil

	switch {
	case err != nil:
		c.requestErr = err
		c.transitionLocked(PhaseIdle, "trace request failed")
		c.publishLocked(events.TypeTraceFailed, map[string]any{"error": err.Error()})
		return err
	case tr.TotalSteps == 0:
		// A successful fetch describing an execution-time failure: no steps
		// to navigate, surface the trace's own error text.
		msg := tr.Error
		if msg == "" {
			msg = "trace contained no steps"
		}
		c.requestErr = errors.New(msg)
		c.transitionLocked(PhaseIdle, "empty trace")
		c.publishLocked(events.TypeTraceFailed, map[string]any{"error": msg})
		return nil
	default:
		c.trace = tr
		c.current = 0
		c.transitionLocked(PhaseReady, "trace loaded")
		c.publishLocked(events.TypeTraceLoaded, map[string]any{
			"total_steps": tr.TotalSteps,
			"truncated":   tr.Truncated,
		})
		return nil
	}
}

// Exit discards the trace and returns to idle, cancelling any in-flight
// request. Safe to call in any phase.
func (c *Controller) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++ // orphan any in-flight result
	if c.cancelInFlight != nil {
		c.cancelInFlight()
		c.cancelInFlight = nil
	}
	if c.phase == PhaseIdle {
		return
	}
	c.trace = nil
	c.current = 0
	c.requestErr = nil
	c.transitionLocked(PhaseIdle, "exited debug mode")
	c.publishLocked(events.TypeSessionExited, nil)
}

// StepForward advances one step, clamped to the last step.
func (c *Controller) StepForward() int {
	return c.move(func(current, last int) int { return current + 1 })
}

// StepBackward moves back one step, clamped to the first step.
func (c *Controller) StepBackward() int {
	return c.move(func(current, last int) int { return current - 1 })
}

// JumpToFirst moves to step 0.
func (c *Controller) JumpToFirst() int {
	return c.move(func(current, last int) int { return 0 })
}

// JumpToLast moves to the final step.
func (c *Controller) JumpToLast() int {
	return c.move(func(current, last int) int { return last })
}

// CurrentStepIndex returns the navigation position.
func (c *Controller) CurrentStepIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) move(target func(current, last int) int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseReady || c.trace == nil {
		return c.current
	}
	last := c.trace.TotalSteps - 1
	next := target(c.current, last)
	if next < 0 {
		next = 0
	}
	if next > last {
		next = last
	}
	c.current = next
	return c.current
}

// transitionLocked applies a validated phase change. Callers hold c.mu.
func (c *Controller) transitionLocked(to Phase, reason string) {
	from := c.phase
	if from == to && from != PhaseLoading {
		return
	}
	if !IsValidTransition(from, to) {
		// Transitions are driven internally; an invalid one is a bug.
		c.logger.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Str("reason", reason).
			Msg("invalid session transition")
		return
	}
	c.phase = to
	c.logger.Debug().
		Str("session_id", c.sessionID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason).
		Msg("session transition")
}

func (c *Controller) publishLocked(typ events.Type, fields map[string]any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		Type:      typ,
		SessionID: c.sessionID,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	})
}
