// Package sandbox runs traces in an isolated Docker container, used when
// local execution of student code is not acceptable for the deployment.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdelfino/steplab/internal/logging"
	"github.com/jdelfino/steplab/internal/trace"
	"github.com/jdelfino/steplab/internal/tracer"
)

const (
	// DefaultContainerPrefix prefixes generated container names.
	DefaultContainerPrefix = "steplab-trace"

	defaultMemoryLimitMB = 256
	defaultPidsLimit     = 64
)

// Docker runs the tracer image in a one-shot container per trace request.
// The container gets no network, a memory cap, and a pids cap; it is
// force-removed on every path. Implements tracer.SandboxBackend.
type Docker struct {
	docker      client.APIClient
	image       string
	namePrefix  string
	timeout     time.Duration
	memoryLimit int64
	logger      zerolog.Logger
}

// Option configures a Docker backend.
type Option func(*Docker)

// WithContainerPrefix overrides the generated container name prefix.
func WithContainerPrefix(prefix string) Option {
	return func(d *Docker) {
		if prefix != "" {
			d.namePrefix = prefix
		}
	}
}

// WithTimeout overrides the per-trace wall-clock limit.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Docker) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMemoryLimitMB overrides the container memory cap.
func WithMemoryLimitMB(mb int64) Option {
	return func(d *Docker) {
		if mb > 0 {
			d.memoryLimit = mb << 20
		}
	}
}

// NewDocker creates a Docker sandbox backend running the given tracer image.
func NewDocker(docker client.APIClient, img string, opts ...Option) *Docker {
	d := &Docker{
		docker:      docker,
		image:       img,
		namePrefix:  DefaultContainerPrefix,
		timeout:     tracer.DefaultTimeout,
		memoryLimit: defaultMemoryLimitMB << 20,
		logger:      logging.Component("sandbox"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TraceInSandbox runs one trace in a fresh container and returns the
// recorded trace. Returns (nil, nil) when the backend does not apply
// (no image configured), per the backend contract.
func (d *Docker) TraceInSandbox(ctx context.Context, sessionID, code string, opts tracer.Options) (*trace.ExecutionTrace, error) {
	if d.image == "" {
		return nil, nil
	}

	name := fmt.Sprintf("%s-%s", d.namePrefix, uuid.New().String()[:8])
	d.logger.Debug().Str("session_id", sessionID).Str("container", name).Msg("starting sandboxed trace")

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	containerCfg := &container.Config{
		Image:           d.image,
		Cmd:             []string{code, opts.Stdin, strconv.Itoa(opts.MaxSteps)},
		NetworkDisabled: true,
	}
	pids := int64(defaultPidsLimit)
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    d.memoryLimit,
			PidsLimit: &pids,
		},
	}

	if err := d.create(runCtx, name, containerCfg, hostCfg); err != nil {
		return nil, err
	}
	// Cleanup must survive a blown deadline.
	defer d.remove(context.WithoutCancel(ctx), name)

	if err := d.docker.ContainerStart(runCtx, name, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start trace container: %w", err)
	}

	status, err := d.wait(runCtx, name)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := d.collectLogs(context.WithoutCancel(ctx), name)
	if err != nil {
		return nil, err
	}

	if status != 0 {
		d.logger.Warn().
			Int64("exit_code", status).
			Str("stderr", string(stderr)).
			Msg("sandboxed tracer exited non-zero")
	}

	return tracer.FoldOutput(stdout, stderr, opts.MaxSteps, d.logger), nil
}

// create creates the container, pulling the image and retrying once when
// it is not present locally.
func (d *Docker) create(ctx context.Context, name string, containerCfg *container.Config, hostCfg *container.HostConfig) error {
	_, err := d.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("create trace container: %w", err)
	}

	if err := d.pullImage(ctx); err != nil {
		return err
	}
	if _, err := d.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name); err != nil {
		return fmt.Errorf("create trace container after pull: %w", err)
	}
	return nil
}

func (d *Docker) pullImage(ctx context.Context) error {
	d.logger.Info().Str("image", d.image).Msg("pulling tracer image")
	resp, err := d.docker.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", d.image, err)
	}
	defer resp.Close()
	var sink bytes.Buffer
	if _, err := sink.ReadFrom(resp); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", d.image, err)
	}
	return nil
}

// wait blocks until the container exits or the deadline fires. A deadline
// is surfaced as *tracer.TimeoutError after the container is confirmed
// gone (remove runs in the deferred cleanup).
func (d *Docker) wait(ctx context.Context, name string) (int64, error) {
	statusCh, errCh := d.docker.ContainerWait(ctx, name, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return 0, fmt.Errorf("wait for trace container: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case err := <-errCh:
		if ctx.Err() == context.DeadlineExceeded {
			return 0, &tracer.TimeoutError{Timeout: d.timeout}
		}
		return 0, fmt.Errorf("wait for trace container: %w", err)
	}
}

func (d *Docker) collectLogs(ctx context.Context, name string) (stdout, stderr []byte, err error) {
	logs, err := d.docker.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("read trace container logs: %w", err)
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		return nil, nil, fmt.Errorf("demux trace container logs: %w", err)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// remove force-removes the container; NotFound is ignored.
func (d *Docker) remove(ctx context.Context, name string) {
	err := d.docker.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		d.logger.Warn().Err(err).Str("container", name).Msg("failed to remove trace container")
	}
}
