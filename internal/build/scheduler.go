// Package build drives a resolved dependency DAG to completion: a bounded
// worker pool that walks leaves-to-goal, expanding and running each
// target's recipe through a shellbridge.Bridge.
package build

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mklang/gomk/internal/graph"
	"github.com/mklang/gomk/internal/macro"
	"github.com/mklang/gomk/internal/mkerr"
	"github.com/mklang/gomk/internal/shellbridge"
)

// Status is a target's position in the per-target state machine. Once Done
// or Failed, a target is never reconsidered within a build.
type Status int

const (
	Pending Status = iota
	Ready
	Running
	Done
	Failed
)

type nodeState struct {
	mu        sync.Mutex
	status    Status
	listeners []chan Status
}

// State is everything the Scheduler needs for one invocation: the macro
// table, search path, and execution flags. It mirrors the BuildState the
// CLI front-end assembles before dispatching a build.
type State struct {
	Macros      *macro.Store
	SearchDirs  []string
	Cwd         string
	MaxJobs     int
	StopOnError bool // false means "-k", keep going after a recipe failure
	Silent      bool
	JustPrint   bool
	Color       bool
}

// Scheduler runs the resolved DAG rooted at a goal, dispatching recipes to
// Shell with at most State.MaxJobs concurrent subprocesses.
type Scheduler struct {
	State State
	Shell shellbridge.Bridge
	Out   *os.File

	// Resolver, if set, is invalidated for a target's name once that
	// target's recipe finishes, so a Resolver shared across multiple
	// goals in the same invocation re-stats it instead of reusing a
	// staleness verdict computed before the recipe ran.
	Resolver *graph.Resolver

	jobsMu  sync.Mutex
	jobsCnd *sync.Cond
	running int

	statesMu sync.Mutex
	states   map[string]*nodeState

	abortedMu sync.Mutex
	aborted   bool
	failures  []string
}

// New creates a Scheduler ready to run Build.
func New(state State, shell shellbridge.Bridge) *Scheduler {
	s := &Scheduler{
		State:  state,
		Shell:  shell,
		Out:    os.Stdout,
		states: make(map[string]*nodeState),
	}
	s.jobsCnd = sync.NewCond(&s.jobsMu)
	if s.State.MaxJobs < 1 {
		s.State.MaxJobs = 1
	}
	return s
}

// Build walks root's DAG to completion. It returns nil on success; on
// failure it returns a RecipeFailed error naming every target this
// Scheduler has recorded as failed, whether its own recipe failed or one of
// its prerequisites did.
func (s *Scheduler) Build(ctx context.Context, root *graph.ResolvedTarget) error {
	final := s.buildNode(ctx, root)
	if final == Failed {
		return mkerr.Newf(mkerr.KindRecipeFailed, "failed targets: %s", strings.Join(s.failures, ", "))
	}
	return nil
}

// claim registers name as Running if it hasn't been claimed yet, returning
// the fresh state and true; otherwise returns the existing state and false
// so the caller waits on it instead of re-running the recipe.
func (s *Scheduler) claim(name string) (*nodeState, bool) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	if st, ok := s.states[name]; ok {
		return st, false
	}
	st := &nodeState{status: Running}
	s.states[name] = st
	return st, true
}

func (s *Scheduler) waitFor(st *nodeState) Status {
	st.mu.Lock()
	if st.status == Done || st.status == Failed {
		status := st.status
		st.mu.Unlock()
		return status
	}
	ch := make(chan Status, 1)
	st.listeners = append(st.listeners, ch)
	st.mu.Unlock()
	return <-ch
}

func (s *Scheduler) finish(st *nodeState, final Status) {
	st.mu.Lock()
	st.status = final
	for _, ch := range st.listeners {
		ch <- final
	}
	st.listeners = nil
	st.mu.Unlock()
}

func (s *Scheduler) isAborted() bool {
	s.abortedMu.Lock()
	defer s.abortedMu.Unlock()
	return s.aborted
}

func (s *Scheduler) recordFailure(name string) {
	s.abortedMu.Lock()
	defer s.abortedMu.Unlock()
	s.failures = append(s.failures, name)
	if s.State.StopOnError {
		s.aborted = true
	}
}

// buildNode builds rt and everything it depends on, blocking until done.
func (s *Scheduler) buildNode(ctx context.Context, rt *graph.ResolvedTarget) Status {
	st, isNew := s.claim(rt.Name)
	if !isNew {
		return s.waitFor(st)
	}

	depFailed := false
	if len(rt.Deps) > 0 {
		depStatus := make(chan Status, len(rt.Deps))
		for _, dep := range rt.Deps {
			dep := dep
			go func() { depStatus <- s.buildNode(ctx, dep) }()
		}
		for range rt.Deps {
			if <-depStatus == Failed {
				depFailed = true
			}
		}
	}

	var final Status
	switch {
	case depFailed:
		final = Failed
		s.recordFailure(rt.Name)
	case s.isAborted():
		final = Failed
	case !rt.MustBuild || len(rt.Recipe) == 0:
		final = Done
	default:
		if s.runRecipe(ctx, rt) {
			final = Done
		} else {
			final = Failed
			s.recordFailure(rt.Name)
		}
	}

	s.finish(st, final)
	return final
}

func (s *Scheduler) reserveJob() {
	s.jobsCnd.L.Lock()
	for s.running >= s.State.MaxJobs {
		s.jobsCnd.Wait()
	}
	s.running++
	s.jobsCnd.L.Unlock()
}

func (s *Scheduler) finishJob() {
	s.jobsCnd.L.Lock()
	s.running--
	s.jobsCnd.Signal()
	s.jobsCnd.L.Unlock()
}

// runRecipe expands and executes every command of rt's recipe in sequence,
// scoping the automatic macros (@, ^, <) to a clone so they never leak to
// sibling targets running concurrently.
func (s *Scheduler) runRecipe(ctx context.Context, rt *graph.ResolvedTarget) bool {
	scoped := s.State.Macros.Clone()
	first := ""
	if len(rt.ConcretePrereq) > 0 {
		first = rt.ConcretePrereq[0]
	}
	scoped.SetAutomatic(rt.Name, rt.ConcretePrereq, first)

	s.reserveJob()
	defer s.finishJob()

	for _, line := range rt.Recipe {
		sigil, cmdText := shellbridge.StripSigils(line)
		expanded, err := scoped.Expand(cmdText)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", rt.Name, err)
			return false
		}

		if !sigil.Silent && !s.State.Silent {
			s.echo(expanded)
		}

		if s.State.JustPrint && !sigil.AlwaysRun {
			continue
		}

		exitCode, err := s.Shell.Run(ctx, expanded, scoped.Environ(), s.State.Cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", rt.Name, err)
			if !sigil.IgnoreErr {
				return false
			}
			continue
		}
		if exitCode != 0 && !sigil.IgnoreErr {
			fmt.Fprintf(os.Stderr, "%s: recipe failed with exit code %d\n", rt.Name, exitCode)
			return false
		}
	}
	if s.Resolver != nil {
		s.Resolver.Refresh(rt.Name)
	}
	return true
}

var echoMu sync.Mutex

func (s *Scheduler) echo(command string) {
	echoMu.Lock()
	defer echoMu.Unlock()
	if s.State.Color {
		fmt.Fprintf(s.Out, "\033[1;34m%s\033[0m\n", command)
	} else {
		fmt.Fprintln(s.Out, command)
	}
}
