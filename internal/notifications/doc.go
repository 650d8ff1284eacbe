// Package notifications pushes run milestones to ntfy.
//
// NewService returns a no-op Service when no topic is configured, so callers
// notify unconditionally and never check whether notifications are enabled.
package notifications
