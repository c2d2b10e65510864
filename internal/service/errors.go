package service

import "errors"

var (
	// ErrInvalidTask marks a mutation that would leave a task in an invalid state.
	ErrInvalidTask = errors.New("invalid task")

	ErrInvalidStatus = errors.New("invalid task status")

	ErrInvalidPriority = errors.New("invalid task priority")

	// ErrRecurringInstance is returned when a rule is put on a task spawned by a template.
	ErrRecurringInstance = errors.New("recurring instance cannot carry a recurrence rule")

	// ErrHierarchyCycle is returned when a parent assignment would make a task its own ancestor.
	ErrHierarchyCycle = errors.New("task hierarchy cycle")

	ErrInvalidFilter = errors.New("invalid task filter")
)
