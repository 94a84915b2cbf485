// Package history records node invocations in SQLite.
//
// The Store is an append-only ledger of finished invocations: which node
// ran, whether it succeeded, the remote result URL, and any local output
// path. It exists for the operator (`cicada history`), not for coordination;
// writers treat insert failures as warnings and never fail a node over them.
//
// Schema changes add a new file under migrations/; applied versions are
// tracked in the schema_migrations table.
package history
