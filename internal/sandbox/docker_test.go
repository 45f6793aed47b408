package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelfino/steplab/internal/tracer"
)

func TestTraceInSandboxDeclinesWithoutImage(t *testing.T) {
	d := NewDocker(nil, "")

	tr, err := d.TraceInSandbox(context.Background(), "sess", "print(1)", tracer.Options{MaxSteps: 10})
	require.NoError(t, err)
	assert.Nil(t, tr, "no image configured means the backend does not apply")
}

func TestNewDockerDefaults(t *testing.T) {
	d := NewDocker(nil, "steplab/pytracer:latest")
	assert.Equal(t, DefaultContainerPrefix, d.namePrefix)
	assert.Equal(t, tracer.DefaultTimeout, d.timeout)
	assert.Equal(t, int64(defaultMemoryLimitMB<<20), d.memoryLimit)

	d = NewDocker(nil, "img", WithContainerPrefix("classroom"), WithMemoryLimitMB(64))
	assert.Equal(t, "classroom", d.namePrefix)
	assert.Equal(t, int64(64<<20), d.memoryLimit)
}
