package handler

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// NewShellCommandFunc returns the "shell_command" builtin. Arguments:
// command (required), args, env, working_dir. The attempt deadline from
// the engine cancels the command through the context.
func NewShellCommandFunc(logger *zap.Logger) model.TaskFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		command, err := stringArg(args, "command")
		if err != nil {
			return nil, err
		}

		cmdArgs := stringSliceArg(args, "args")

		cmd := exec.CommandContext(ctx, command, cmdArgs...)

		if dir := optionalStringArg(args, "working_dir"); dir != "" {
			cmd.Dir = dir
		}

		if env := stringMapArg(args, "env"); len(env) > 0 {
			for k, v := range env {
				cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
			}
		}

		logger.Info("Executing shell command",
			zap.String("command", command),
			zap.Strings("args", cmdArgs))

		output, err := cmd.CombinedOutput()
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.New("command execution timed out")
			}
			if msg := strings.TrimSpace(string(output)); msg != "" {
				return nil, fmt.Errorf("command failed: %s", msg)
			}
			return nil, fmt.Errorf("command failed: %w", err)
		}

		return string(output), nil
	}
}
