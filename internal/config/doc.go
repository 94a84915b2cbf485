// Package config loads and validates the TOML settings file plus the
// JSON credential file used to authorize against the Chanjing open API.
//
// Settings describe paths, network behavior, rate limits, and job
// budgets. API credentials deliberately live outside the settings file
// so they can be rotated without touching tunables and re-read on every
// token request.
package config
