package queue

import (
	"time"
)

// Status is the terminal outcome carried by a Completion.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusPermanentFailure Status = "permanent_failure"
)

// Item is a single audio file awaiting transcription.
type Item struct {
	Path       string
	RetryCount int
}

// Attempt returns the 1-based attempt number the item is on.
func (i Item) Attempt() int {
	return i.RetryCount + 1
}

// Completion reports the terminal outcome of one item. Exactly one is emitted
// per item per generation.
type Completion struct {
	Path           string
	Status         Status
	ProcessingTime time.Duration
	Attempts       int
	// Skipped marks items whose result appeared after the roster was built.
	Skipped bool
	Worker  int
	Err     error
}

// Succeeded reports whether the completion is a success (skipped or not).
func (c Completion) Succeeded() bool {
	return c.Status == StatusSuccess
}
