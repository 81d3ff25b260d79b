package engine

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow ID is unknown
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDuplicateWorkflow is returned when a workflow ID is reused
	ErrDuplicateWorkflow = errors.New("duplicate workflow")

	// ErrFunctionNotRegistered is recorded on a task whose named function
	// cannot be resolved at dispatch time
	ErrFunctionNotRegistered = errors.New("function not registered")
)
