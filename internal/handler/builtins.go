package handler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/registry"
)

// RegisterBuiltins registers the builtin task functions under their
// well-known names. baseDir sandboxes file operations.
func RegisterBuiltins(reg *registry.Registry, logger *zap.Logger, baseDir string) {
	reg.Register("http_request", NewHTTPRequestFunc(logger))
	reg.Register("shell_command", NewShellCommandFunc(logger))
	reg.Register("data_processing", NewDataProcessingFunc(logger))
	reg.Register("file_operation", NewFileOperationFunc(logger, baseDir))
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument: %s", key)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

// optionalStringArg extracts an optional string argument.
func optionalStringArg(args map[string]interface{}, key string) string {
	if value, ok := args[key]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

// stringSliceArg extracts an optional string slice argument, accepting
// both []string and the []interface{} form produced by JSON decoding.
func stringSliceArg(args map[string]interface{}, key string) []string {
	value, ok := args[key]
	if !ok {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// stringMapArg extracts an optional string map argument.
func stringMapArg(args map[string]interface{}, key string) map[string]string {
	value, ok := args[key]
	if !ok {
		return nil
	}
	switch v := value.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// floatSliceArg extracts an optional numeric slice argument.
func floatSliceArg(args map[string]interface{}, key string) ([]float64, error) {
	value, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing argument: %s", key)
	}
	switch v := value.(type) {
	case []float64:
		return v, nil
	case []interface{}:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			default:
				return nil, fmt.Errorf("argument %s must contain numbers", key)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("argument %s must be a number list", key)
}

// floatArg extracts a required numeric argument.
func floatArg(args map[string]interface{}, key string) (float64, error) {
	value, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument: %s", key)
	}
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("argument %s must be a number", key)
}
