// Package graph builds the dependency DAG over a protocol's steps,
// detects cycles, and computes parallel execution levels.
package graph

// Node is one step as seen by the scheduler: just enough to build edges and
// break ties, not the full persisted StepRun.
type Node struct {
	ID        string
	StepIndex int
	Name      string
	DependsOn []string
}

func cloneNode(n Node) Node {
	cp := n
	if len(n.DependsOn) > 0 {
		cp.DependsOn = append([]string(nil), n.DependsOn...)
	}
	return cp
}
