package node

// Registry holds the node set an embedding process exposes, preserving
// registration order for listings.
type Registry struct {
	order []string
	nodes map[string]Node
}

// NewRegistry builds a registry from the given nodes. A later duplicate
// replaces the earlier registration without changing its position.
func NewRegistry(nodes ...Node) *Registry {
	r := &Registry{nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		name := n.Spec().Name
		if _, exists := r.nodes[name]; !exists {
			r.order = append(r.order, name)
		}
		r.nodes[name] = n
	}
	return r
}

// Get returns the node registered under name.
func (r *Registry) Get(name string) (Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// List returns the registered specs in registration order.
func (r *Registry) List() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.nodes[name].Spec())
	}
	return specs
}
