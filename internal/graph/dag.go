package graph

import "sort"

// Cycle is one strongly connected component of size > 1, or a single
// self-dependent node, reported by DetectCyclesTarjan.
type Cycle struct {
	NodeIDs []string
}

// tarjanState holds the bookkeeping for one run of Tarjan's algorithm.
type tarjanState struct {
	g        *DAG
	index    int
	indices  map[string]int
	lowlink  map[string]int
	onStack  map[string]bool
	stack    []string
	sccs     [][]string
}

// DetectCyclesTarjan finds every strongly connected component of size > 1
// (a true cycle) using Tarjan's algorithm, plus single-node self-loops.
// Nodes are visited in insertion order so results are deterministic across
// runs on the same input.
func DetectCyclesTarjan(g *DAG) []Cycle {
	st := &tarjanState{
		g:       g,
		indices: make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, id := range g.order {
		if _, seen := st.indices[id]; !seen {
			st.strongConnect(id)
		}
	}

	var cycles []Cycle
	for _, scc := range st.sccs {
		if len(scc) > 1 || isSelfLoop(g, scc[0]) {
			sorted := append([]string(nil), scc...)
			sort.Strings(sorted)
			cycles = append(cycles, Cycle{NodeIDs: sorted})
		}
	}
	return cycles
}

func (st *tarjanState) strongConnect(v string) {
	st.indices[v] = st.index
	st.lowlink[v] = st.index
	st.index++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.g.forward[v] {
		if _, ok := st.g.nodes[w]; !ok {
			continue // dangling edge, Validate reports this separately
		}
		if _, seen := st.indices[w]; !seen {
			st.strongConnect(w)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.indices[w] < st.lowlink[v] {
				st.lowlink[v] = st.indices[w]
			}
		}
	}

	if st.lowlink[v] == st.indices[v] {
		var scc []string
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}

func isSelfLoop(g *DAG, id string) bool {
	for _, dep := range g.forward[id] {
		if dep == id {
			return true
		}
	}
	return false
}

// DetectCyclesDFS is a 3-color depth-first search fallback for cycle
// detection, returning the first cycle found as a path (not a full SCC).
// Used as a cross-check against DetectCyclesTarjan in tests and as a
// cheaper single-cycle probe when the caller only needs a yes/no answer
// with one example path.
func DetectCyclesDFS(g *DAG) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string)
	var cyclePath []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range g.forward[id] {
			if _, ok := g.nodes[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				// Found a back edge id -> dep: reconstruct the cycle path.
				path := []string{dep}
				cur := id
				for cur != dep {
					path = append(path, cur)
					cur = parent[cur]
				}
				path = append(path, dep)
				reverseStrings(path)
				cyclePath = path
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white {
			if visit(id) {
				return cyclePath
			}
		}
	}
	return nil
}

func reverseStrings(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Level is one group of node ids that can run in parallel: every id in a
// level has all its dependencies satisfied by strictly earlier levels.
type Level struct {
	Index   int
	NodeIDs []string
}

// TopologicalLevels computes parallel execution levels using Kahn's
// algorithm: repeatedly peel off nodes whose dependencies are all already
// placed in an earlier level. Within a level, ids are ordered by
// (step_index asc, id asc) so dispatch order is stable across runs.
// Returns an error if the graph has a cycle or a dangling dependency.
func TopologicalLevels(g *DAG) ([]Level, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if cycles := DetectCyclesTarjan(g); len(cycles) > 0 {
		return nil, &ErrCycle{Cycles: cycles}
	}

	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.forward[id])
	}

	remaining := len(g.nodes)
	var levels []Level
	placed := make(map[string]bool, len(g.nodes))

	for remaining > 0 {
		var ready []string
		for id := range g.nodes {
			if !placed[id] && indegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Validate + DetectCyclesTarjan above should make this unreachable.
			return nil, &ErrCycle{}
		}
		sortByStepIndexThenID(ready, g)

		for _, id := range ready {
			placed[id] = true
			remaining--
		}
		for _, id := range ready {
			for _, blocked := range g.reverse[id] {
				if _, ok := g.nodes[blocked]; ok {
					indegree[blocked]--
				}
			}
		}
		levels = append(levels, Level{Index: len(levels), NodeIDs: ready})
	}
	return levels, nil
}

// ErrCycle is returned by TopologicalLevels when the graph is not a DAG.
type ErrCycle struct {
	Cycles []Cycle
}

func (e *ErrCycle) Error() string {
	return "graph: dependency cycle detected"
}

func sortByStepIndexThenID(ids []string, g *DAG) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.StepIndex != b.StepIndex {
			return a.StepIndex < b.StepIndex
		}
		return a.ID < b.ID
	})
}
