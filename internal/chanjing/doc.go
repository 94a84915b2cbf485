// Package chanjing implements the client for the Chanjing open API: token
// lifecycle management, rate-limited JSON calls with bounded transport
// retries, two-step media upload with sync polling, result download, and
// the three long-running job pollers (lip-sync render, voice clone, speech
// synthesis).
//
// All remote failures are tagged with the package's sentinel errors so
// callers can distinguish configuration problems, auth rejections, billing
// shortfalls, and transient flakiness without parsing message text.
package chanjing
