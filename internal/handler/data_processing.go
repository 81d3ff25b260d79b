package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/model"
)

// NewDataProcessingFunc returns the "data_processing" builtin. Arguments:
// operation (transform | filter | aggregate), input (number list), and
// operation-specific parameters.
func NewDataProcessingFunc(logger *zap.Logger) model.TaskFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		operation, err := stringArg(args, "operation")
		if err != nil {
			return nil, err
		}

		input, err := floatSliceArg(args, "input")
		if err != nil {
			return nil, err
		}

		logger.Info("Processing data",
			zap.String("operation", operation),
			zap.Int("input_size", len(input)))

		switch operation {
		case "transform":
			factor, err := floatArg(args, "factor")
			if err != nil {
				return nil, err
			}
			out := make([]float64, len(input))
			for i, v := range input {
				out[i] = v * factor
			}
			return out, nil

		case "filter":
			min, err := floatArg(args, "min")
			if err != nil {
				return nil, err
			}
			out := make([]float64, 0, len(input))
			for _, v := range input {
				if v >= min {
					out = append(out, v)
				}
			}
			return out, nil

		case "aggregate":
			var sum float64
			for _, v := range input {
				sum += v
			}
			return sum, nil

		default:
			return nil, fmt.Errorf("unknown operation: %s", operation)
		}
	}
}
