package node

// VideoView points the host UI at a playable file under the output
// directory.
type VideoView struct {
	Filename  string
	Subfolder string
	Format    string
}

// UIPayload carries display-only output for terminal nodes.
type UIPayload struct {
	Videos []VideoView
	Text   []string
}

// Result is a successful execution outcome. Values line up with the
// node's declared output slots; UI is set by terminal nodes.
type Result struct {
	Values []any
	UI     *UIPayload
}
