// Package logging configures slog for the CLI and node runtime.
//
// Two output formats are supported: a compact console format for
// interactive use and JSON for machine consumption. Component loggers
// tag every record with the subsystem that produced it so a single
// stream stays attributable.
package logging
