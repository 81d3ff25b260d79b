package handler

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/registry"
)

func TestShellCommandEcho(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fn := NewShellCommandFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"command": "echo",
		"args":    []interface{}{"hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", result)
}

func TestShellCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fn := NewShellCommandFunc(zap.NewNop())

	_, err := fn(context.Background(), map[string]interface{}{
		"command": "false",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command failed")
}

func TestShellCommandTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	fn := NewShellCommandFunc(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := fn(ctx, map[string]interface{}{
		"command": "sleep",
		"args":    []interface{}{"5"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRegisterBuiltins(t *testing.T) {
	logger := zap.NewNop()
	reg := registry.New(logger)

	RegisterBuiltins(reg, logger, t.TempDir())

	for _, name := range []string{"http_request", "shell_command", "data_processing", "file_operation"} {
		_, ok := reg.Resolve(name)
		assert.True(t, ok, "builtin %s not registered", name)
	}
}
