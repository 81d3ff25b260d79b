package model

import "errors"

var (
	// ErrDuplicateTask is returned when a task ID is reused within a workflow
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrCircularDependency is returned when the dependency graph has a cycle
	ErrCircularDependency = errors.New("circular dependency detected")
)
