package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDataProcessingTransform(t *testing.T) {
	fn := NewDataProcessingFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"operation": "transform",
		"input":     []interface{}{1.0, 2.0, 3.0},
		"factor":    2.0,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, result)
}

func TestDataProcessingFilter(t *testing.T) {
	fn := NewDataProcessingFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"operation": "filter",
		"input":     []float64{1, 2, 3, 4, 5},
		"min":       3.0,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, result)
}

func TestDataProcessingAggregate(t *testing.T) {
	fn := NewDataProcessingFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"operation": "aggregate",
		"input":     []interface{}{1.0, 2.0, 3.0, 4.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, result)
}

func TestDataProcessingArgumentErrors(t *testing.T) {
	fn := NewDataProcessingFunc(zap.NewNop())

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{
			"missing operation",
			map[string]interface{}{"input": []float64{1}},
			"missing argument: operation",
		},
		{
			"missing input",
			map[string]interface{}{"operation": "aggregate"},
			"missing argument: input",
		},
		{
			"unknown operation",
			map[string]interface{}{"operation": "median", "input": []float64{1}},
			"unknown operation",
		},
		{
			"transform without factor",
			map[string]interface{}{"operation": "transform", "input": []float64{1}},
			"missing argument: factor",
		},
		{
			"non numeric input",
			map[string]interface{}{"operation": "aggregate", "input": []interface{}{"one"}},
			"must contain numbers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fn(context.Background(), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
