// Package services defines shared utilities consumed by the scheduler and its
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp GPU identities, input paths, supervisor
//     generations, and run identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (configuration vs external tool vs transient) with errors.Is.
//
// Use these helpers when wiring new integrations so error handling and
// observability stay uniform across the scheduler.
package services
