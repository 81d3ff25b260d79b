package handler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// NewFileOperationFunc returns the "file_operation" builtin. Arguments:
// operation (read | write | delete | copy), source_path, target_path,
// content. All paths are resolved under baseDir.
func NewFileOperationFunc(logger *zap.Logger, baseDir string) model.TaskFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		operation, err := stringArg(args, "operation")
		if err != nil {
			return nil, err
		}

		sourcePath, err := resolvePath(baseDir, args, "source_path")
		if err != nil {
			return nil, err
		}

		logger.Info("Executing file operation",
			zap.String("operation", operation),
			zap.String("source", sourcePath))

		switch operation {
		case "read":
			data, err := os.ReadFile(sourcePath)
			if err != nil {
				return nil, err
			}
			return string(data), nil

		case "write":
			content := optionalStringArg(args, "content")
			if err := os.MkdirAll(filepath.Dir(sourcePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.WriteFile(sourcePath, []byte(content), 0644); err != nil {
				return nil, err
			}
			return nil, nil

		case "delete":
			return nil, os.Remove(sourcePath)

		case "copy":
			targetPath, err := resolvePath(baseDir, args, "target_path")
			if err != nil {
				return nil, err
			}
			return nil, copyFile(sourcePath, targetPath)

		default:
			return nil, fmt.Errorf("unsupported operation: %s", operation)
		}
	}
}

// resolvePath joins a path argument with baseDir and rejects escapes.
func resolvePath(baseDir string, args map[string]interface{}, key string) (string, error) {
	rel, err := stringArg(args, key)
	if err != nil {
		return "", err
	}

	path := filepath.Clean(filepath.Join(baseDir, rel))
	if !strings.HasPrefix(path, filepath.Clean(baseDir)) {
		return "", fmt.Errorf("%s must be within base directory", key)
	}
	return path, nil
}

func copyFile(source, target string) error {
	sourceFile, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	targetFile, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer targetFile.Close()

	if _, err := io.Copy(targetFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	return os.Chmod(target, sourceInfo.Mode())
}
