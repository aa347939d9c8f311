package build

import (
	"context"
	"sync"
	"testing"

	"github.com/mklang/gomk/internal/graph"
	"github.com/mklang/gomk/internal/macro"
)

type fakeShell struct {
	mu  sync.Mutex
	ran []string
}

func (f *fakeShell) Run(ctx context.Context, command string, env []string, dir string) (int, error) {
	f.mu.Lock()
	f.ran = append(f.ran, command)
	f.mu.Unlock()
	return 0, nil
}

func TestBuildRunsPrereqBeforeDependent(t *testing.T) {
	leaf := &graph.ResolvedTarget{Name: "a.o", MustBuild: true, Recipe: []string{"echo building a"}}
	root := &graph.ResolvedTarget{Name: "prog", MustBuild: true, Recipe: []string{"echo linking $^"}, ConcretePrereq: []string{"a.o"}, Deps: []*graph.ResolvedTarget{leaf}}

	shell := &fakeShell{}
	sched := New(State{Macros: macro.New(), MaxJobs: 2, StopOnError: true}, shell)

	if err := sched.Build(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	if len(shell.ran) != 2 {
		t.Fatalf("expected 2 recipe commands, got %v", shell.ran)
	}
	if shell.ran[0] != "echo building a" {
		t.Errorf("prerequisite should run first, got %v", shell.ran)
	}
	if shell.ran[1] != "echo linking a.o" {
		t.Errorf("want automatic ^ expanded, got %q", shell.ran[1])
	}
}

type failingShell struct{}

func (failingShell) Run(ctx context.Context, command string, env []string, dir string) (int, error) {
	return 1, nil
}

func TestBuildStopsOnErrorByDefault(t *testing.T) {
	leaf := &graph.ResolvedTarget{Name: "broken", MustBuild: true, Recipe: []string{"false"}}
	root := &graph.ResolvedTarget{Name: "goal", MustBuild: true, Recipe: []string{"echo never runs"}, Deps: []*graph.ResolvedTarget{leaf}}

	sched := New(State{Macros: macro.New(), MaxJobs: 1, StopOnError: true}, failingShell{})
	if err := sched.Build(context.Background(), root); err == nil {
		t.Fatal("expected build error")
	}
}

func TestBuildSkipsUpToDateTargets(t *testing.T) {
	leaf := &graph.ResolvedTarget{Name: "current.o", MustBuild: false, Recipe: []string{"echo should not run"}}

	shell := &fakeShell{}
	sched := New(State{Macros: macro.New(), MaxJobs: 1, StopOnError: true}, shell)
	if err := sched.Build(context.Background(), leaf); err != nil {
		t.Fatal(err)
	}
	if len(shell.ran) != 0 {
		t.Errorf("up-to-date target should not run its recipe, ran %v", shell.ran)
	}
}
