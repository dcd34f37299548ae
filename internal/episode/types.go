package episode

import (
	"errors"
	"time"
)

// Common errors for episode operations.
var (
	ErrEmptyTask     = errors.New("episode task cannot be empty")
	ErrInvalidResult = errors.New("result must be 'success', 'failure', or 'error'")
)

// Result is the recorded outcome of a task attempt.
type Result string

const (
	// ResultSuccess indicates the task completed.
	ResultSuccess Result = "success"

	// ResultFailure indicates the task ran but did not achieve its goal.
	ResultFailure Result = "failure"

	// ResultError indicates the task aborted with an error.
	ResultError Result = "error"
)

// Valid reports whether r is one of the known result values.
func (r Result) Valid() bool {
	return r == ResultSuccess || r == ResultFailure || r == ResultError
}

// Episode is one recorded task attempt and its outcome.
//
// Episodes are immutable once written: the store only ever appends. They are
// the single source of truth that retrieval, consolidation, and fitness
// evaluation all derive from.
type Episode struct {
	// ID is the monotonically increasing episode identifier.
	ID int64 `json:"id"`

	// CreatedAt is when the episode was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Task is the task description as submitted by the caller.
	Task string `json:"task"`

	// Result is the outcome of the attempt.
	Result Result `json:"result"`

	// Reflection is free-form text describing what happened and why.
	Reflection string `json:"reflection,omitempty"`
}

// Text returns the task and reflection joined, which is the text the
// similarity index vectorizes.
func (e Episode) Text() string {
	if e.Reflection == "" {
		return e.Task
	}
	return e.Task + " " + e.Reflection
}
