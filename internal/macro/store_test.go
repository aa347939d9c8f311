package macro

import "testing"

func TestDefineAssignOps(t *testing.T) {
	s := New()

	if err := s.Define("A", "1", Assign); err != nil {
		t.Fatal(err)
	}
	if err := s.Define("A", "2", AssignIfAbsent); err != nil {
		t.Fatal(err)
	}
	m, _ := s.Lookup("A")
	if m.Value != "1" {
		t.Errorf("?= clobbered existing value: got %q", m.Value)
	}

	if err := s.Define("B", "1", Assign); err != nil {
		t.Fatal(err)
	}
	if err := s.Define("B", "2", AssignAppend); err != nil {
		t.Fatal(err)
	}
	m, _ = s.Lookup("B")
	if m.Value != "1 2" {
		t.Errorf("+= got %q, want %q", m.Value, "1 2")
	}

	if err := s.Define("C", "$(A)", AssignImmediate); err != nil {
		t.Fatal(err)
	}
	if err := s.Define("A", "changed", Assign); err != nil {
		t.Fatal(err)
	}
	m, _ = s.Lookup("C")
	if m.Value != "1" {
		t.Errorf(":= should have frozen the expansion at define time, got %q", m.Value)
	}
}

func TestDeferredReExpandsOnEveryUse(t *testing.T) {
	s := New()
	s.Define("X", "1", Assign)
	s.Define("Y", "$(X)", Assign)
	v1, err := s.Expand("$(Y)")
	if err != nil {
		t.Fatal(err)
	}
	s.Define("X", "2", Assign)
	v2, err := s.Expand("$(Y)")
	if err != nil {
		t.Fatal(err)
	}
	if v1 != "1" || v2 != "2" {
		t.Errorf("got v1=%q v2=%q, want v1=1 v2=2", v1, v2)
	}
}

func TestCloneIsolatesAutomatics(t *testing.T) {
	s := New()
	s.Define("FOO", "bar", Assign)
	clone := s.Clone()
	clone.SetAutomatic("out.o", []string{"out.c"}, "out.c")

	if _, ok := s.Lookup("@"); ok {
		t.Errorf("parent store must not see clone's automatic variables")
	}
	m, ok := clone.Lookup("@")
	if !ok || m.Value != "out.o" {
		t.Errorf("clone @ = %+v, ok=%v", m, ok)
	}
}

func TestInvalidName(t *testing.T) {
	s := New()
	if err := s.Define("bad name", "x", Assign); err == nil {
		t.Error("expected error for invalid macro name")
	}
}
