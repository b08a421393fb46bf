package graph

import "testing"

func TestBuildAndValidateDanglingDependency(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"ghost"}},
	})
	err := g.Validate()
	if err == nil {
		t.Fatal("expected dangling dependency error")
	}
	var dangling *ErrDanglingDependency
	if de, ok := err.(*ErrDanglingDependency); ok {
		dangling = de
	}
	if dangling == nil || dangling.MissingDep != "ghost" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDetectCyclesTarjanFindsDirectCycle(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"b"}},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
	})
	cycles := DetectCyclesTarjan(g)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d: %+v", len(cycles), cycles)
	}
	if len(cycles[0].NodeIDs) != 2 {
		t.Fatalf("expected cycle of 2 nodes, got %+v", cycles[0])
	}
}

func TestDetectCyclesTarjanFindsSelfLoop(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"a"}},
	})
	cycles := DetectCyclesTarjan(g)
	if len(cycles) != 1 || cycles[0].NodeIDs[0] != "a" {
		t.Fatalf("expected self-loop cycle on a, got %+v", cycles)
	}
}

func TestDetectCyclesTarjanFindsLongerCycle(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"c"}},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
		{ID: "c", StepIndex: 2, DependsOn: []string{"b"}},
	})
	cycles := DetectCyclesTarjan(g)
	if len(cycles) != 1 || len(cycles[0].NodeIDs) != 3 {
		t.Fatalf("expected one 3-node cycle, got %+v", cycles)
	}
}

func TestDetectCyclesTarjanNoFalsePositiveOnDAG(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
		{ID: "c", StepIndex: 2, DependsOn: []string{"a", "b"}},
	})
	if cycles := DetectCyclesTarjan(g); len(cycles) != 0 {
		t.Fatalf("expected no cycles in a DAG, got %+v", cycles)
	}
}

func TestDetectCyclesDFSAgreesWithTarjan(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"b"}},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
	})
	if path := DetectCyclesDFS(g); len(path) == 0 {
		t.Fatal("expected DFS fallback to find the cycle")
	}
	if cycles := DetectCyclesTarjan(g); len(cycles) == 0 {
		t.Fatal("expected Tarjan to find the cycle")
	}
}

func TestTopologicalLevelsLinearChain(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
		{ID: "c", StepIndex: 2, DependsOn: []string{"b"}},
	})
	levels, err := TopologicalLevels(g)
	if err != nil {
		t.Fatalf("TopologicalLevels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels for a linear chain, got %d", len(levels))
	}
	for i, lvl := range levels {
		if len(lvl.NodeIDs) != 1 {
			t.Fatalf("level %d: expected 1 node, got %+v", i, lvl.NodeIDs)
		}
	}
}

func TestTopologicalLevelsParallelFanOut(t *testing.T) {
	g := Build([]Node{
		{ID: "root", StepIndex: 0},
		{ID: "b1", StepIndex: 1, DependsOn: []string{"root"}},
		{ID: "b2", StepIndex: 2, DependsOn: []string{"root"}},
		{ID: "join", StepIndex: 3, DependsOn: []string{"b1", "b2"}},
	})
	levels, err := TopologicalLevels(g)
	if err != nil {
		t.Fatalf("TopologicalLevels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %+v", len(levels), levels)
	}
	if len(levels[1].NodeIDs) != 2 {
		t.Fatalf("expected level 1 to contain both parallel branches, got %+v", levels[1])
	}
}

func TestTopologicalLevelsTieBreaksByStepIndexThenID(t *testing.T) {
	g := Build([]Node{
		{ID: "z", StepIndex: 1},
		{ID: "a", StepIndex: 0},
		{ID: "m", StepIndex: 0},
	})
	levels, err := TopologicalLevels(g)
	if err != nil {
		t.Fatalf("TopologicalLevels: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected all 3 independent nodes in one level, got %d levels", len(levels))
	}
	got := levels[0].NodeIDs
	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestTopologicalLevelsRejectsCycle(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0, DependsOn: []string{"b"}},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
	})
	_, err := TopologicalLevels(g)
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestDependsOnAndBlocksIDs(t *testing.T) {
	g := Build([]Node{
		{ID: "a", StepIndex: 0},
		{ID: "b", StepIndex: 1, DependsOn: []string{"a"}},
	})
	if deps := g.DependsOnIDs("b"); len(deps) != 1 || deps[0] != "a" {
		t.Fatalf("unexpected deps: %v", deps)
	}
	if blocks := g.BlocksIDs("a"); len(blocks) != 1 || blocks[0] != "b" {
		t.Fatalf("unexpected blocks: %v", blocks)
	}
}
