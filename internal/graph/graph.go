package graph

// DAG is a directed dependency graph built from Node.DependsOn edges.
type DAG struct {
	nodes   map[string]*Node
	order   []string // node ids in insertion order, for deterministic iteration
	forward map[string][]string
	reverse map[string][]string
}

// Build constructs a dependency graph from a slice of nodes. Nodes are
// copied to avoid aliasing the caller's slice. An edge to an unknown id is
// kept in forward/reverse bookkeeping even though its target is absent;
// Validate surfaces that as a dangling-dependency error.
func Build(nodes []Node) *DAG {
	g := &DAG{
		nodes:   make(map[string]*Node, len(nodes)),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
	for i := range nodes {
		n := cloneNode(nodes[i])
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}
	for i := range nodes {
		id := nodes[i].ID
		for _, depID := range nodes[i].DependsOn {
			g.forward[id] = append(g.forward[id], depID)
			g.reverse[depID] = append(g.reverse[depID], id)
		}
	}
	return g
}

// Nodes returns the node map. Callers must not mutate the returned map or
// node pointers.
func (g *DAG) Nodes() map[string]*Node {
	if g == nil {
		return nil
	}
	return g.nodes
}

// DependsOnIDs returns a copy of the ids this node depends on.
func (g *DAG) DependsOnIDs(id string) []string {
	if g == nil {
		return nil
	}
	return copyStrings(g.forward[id])
}

// BlocksIDs returns a copy of the ids blocked by this node.
func (g *DAG) BlocksIDs(id string) []string {
	if g == nil {
		return nil
	}
	return copyStrings(g.reverse[id])
}

// ErrDanglingDependency names a step that depends on an id absent from the graph.
type ErrDanglingDependency struct {
	NodeID     string
	MissingDep string
}

func (e *ErrDanglingDependency) Error() string {
	return "graph: node " + e.NodeID + " depends on unknown step " + e.MissingDep
}

// Validate reports the first dangling dependency found, or nil if every
// edge's target exists in the graph. Checked before cycle detection since a
// dangling edge makes cycle/level results meaningless.
func (g *DAG) Validate() error {
	for _, id := range g.order {
		for _, dep := range g.forward[id] {
			if _, ok := g.nodes[dep]; !ok {
				return &ErrDanglingDependency{NodeID: id, MissingDep: dep}
			}
		}
	}
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
