package graph

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSearchPathSeparators(t *testing.T) {
	cases := map[string][]string{
		"a;b;c":  {"a", "b", "c"},
		"a:b:c":  {"a", "b", "c"},
		"a b c":  {"a", "b", "c"},
		"single": {"single"},
	}
	for in, want := range cases {
		got := SearchPath(in)
		if len(got) != len(want) {
			t.Errorf("SearchPath(%q) = %v, want %v", in, got, want)
			continue
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("SearchPath(%q) = %v, want %v", in, got, want)
				break
			}
		}
	}
}

func TestResolveStalenessBySourceLeaf(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.c")
	newer := filepath.Join(dir, "new.o")

	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	tt := NewTargetTable()
	tt.AddExplicit(&Rule{Targets: []string{newer}, Prereqs: []string{old}, Recipe: []string{"touch $@"}})

	r := NewResolver(tt, nil)
	rt, err := r.Resolve(newer)
	if err != nil {
		t.Fatal(err)
	}
	if rt.MustBuild {
		t.Error("target newer than its prerequisite should not need rebuilding")
	}

	// Now make the prerequisite newer than the target.
	if err := os.Chtimes(old, time.Now().Add(time.Hour), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	tt2 := NewTargetTable()
	tt2.AddExplicit(&Rule{Targets: []string{newer}, Prereqs: []string{old}, Recipe: []string{"touch $@"}})
	r2 := NewResolver(tt2, nil)
	rt2, err := r2.Resolve(newer)
	if err != nil {
		t.Fatal(err)
	}
	if !rt2.MustBuild {
		t.Error("target older than its prerequisite should need rebuilding")
	}
}

func TestResolvePhonyAlwaysBuilds(t *testing.T) {
	tt := NewTargetTable()
	tt.MarkPhony([]string{"clean"})
	tt.AddExplicit(&Rule{Targets: []string{"clean"}, Recipe: []string{"rm -f *.o"}})

	r := NewResolver(tt, nil)
	rt, err := r.Resolve("clean")
	if err != nil {
		t.Fatal(err)
	}
	if !rt.MustBuild || !rt.Phony {
		t.Errorf("phony target must always build: %+v", rt)
	}
}

func TestResolveCycleDetected(t *testing.T) {
	tt := NewTargetTable()
	tt.AddExplicit(&Rule{Targets: []string{"a"}, Prereqs: []string{"b"}})
	tt.AddExplicit(&Rule{Targets: []string{"b"}, Prereqs: []string{"a"}})

	r := NewResolver(tt, nil)
	if _, err := r.Resolve("a"); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestResolveNoRule(t *testing.T) {
	tt := NewTargetTable()
	r := NewResolver(tt, nil)
	if _, err := r.Resolve("does-not-exist.xyz"); err == nil {
		t.Fatal("expected NoRule error")
	}
}

func TestResolvePatternRule(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tt := NewTargetTable()
	tt.AddPattern(&Rule{Targets: []string{filepath.Join(dir, "%.o")}, Prereqs: []string{filepath.Join(dir, "%.c")}, Recipe: []string{"cc -c $< -o $@"}})

	r := NewResolver(tt, nil)
	rt, err := r.Resolve(filepath.Join(dir, "main.o"))
	if err != nil {
		t.Fatal(err)
	}
	if !rt.MustBuild {
		t.Error("missing object file should need building")
	}
	if len(rt.ConcretePrereq) != 1 || rt.ConcretePrereq[0] != src {
		t.Errorf("ConcretePrereq = %v, want [%s]", rt.ConcretePrereq, src)
	}
}
