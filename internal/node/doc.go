// Package node defines the contract between the embedding host and the
// operations this module exposes as graph nodes.
//
// A Node publishes a static Spec (parameters, outputs, display metadata)
// and an Execute method that turns resolved Inputs into a Result. All
// collaborators reach a node through Env, the dependency object the
// embedding process constructs once and threads through every
// invocation; there are no package-level singletons.
//
// ResolveMedia normalizes the many shapes hosts use for media values
// (plain paths, path-bearing objects, byte streams, decoded audio
// buffers, tagged maps) into a local file path through a closed adapter
// chain. New host shapes get a new adapter; nothing is reflected over.
package node
