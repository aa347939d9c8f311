package macro

import "testing"

func TestExpandLiteralDollar(t *testing.T) {
	s := New()
	got, err := s.Expand("price: $$5")
	if err != nil {
		t.Fatal(err)
	}
	if got != "price: $5" {
		t.Errorf("got %q", got)
	}
}

func TestExpandUnknownNameIsEmpty(t *testing.T) {
	s := New()
	got, err := s.Expand("[$(NOPE)]")
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("got %q", got)
	}
}

func TestExpandNestedReference(t *testing.T) {
	s := New()
	s.Define("SUFFIX", "NAME", Assign)
	s.Define("VAR_NAME", "hello", Assign)
	got, err := s.Expand("$(VAR_$(SUFFIX))")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpandCycleDetected(t *testing.T) {
	s := New()
	s.Define("A", "$(B)", Assign)
	s.Define("B", "$(A)", Assign)
	_, err := s.Expand("$(A)")
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestExpandUnclosedReference(t *testing.T) {
	s := New()
	if _, err := s.Expand("$(FOO"); err == nil {
		t.Error("expected unclosed reference error")
	}
}

func TestBuiltinSubstAndPatsubst(t *testing.T) {
	s := New()
	got, err := s.Expand("$(subst .c,.o,a.c b.c)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.o b.o" {
		t.Errorf("subst got %q", got)
	}

	got, err = s.Expand("$(patsubst %.c,%.o,a.c b.c dir/c.c)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.o b.o dir/c.o" {
		t.Errorf("patsubst got %q", got)
	}
}

func TestBuiltinWordFamily(t *testing.T) {
	s := New()
	cases := map[string]string{
		"$(firstword a b c)": "a",
		"$(lastword a b c)":  "c",
		"$(word 2,a b c)":    "b",
		"$(words a b c)":     "3",
		"$(word 9,a b c)":    "",
	}
	for expr, want := range cases {
		got, err := s.Expand(expr)
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", expr, got, want)
		}
	}
}

func TestBuiltinSortStrip(t *testing.T) {
	s := New()
	got, err := s.Expand("$(sort banana apple banana cherry)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "apple banana cherry" {
		t.Errorf("sort got %q", got)
	}

	got, err = s.Expand("$(strip   a   b  c  )")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a b c" {
		t.Errorf("strip got %q", got)
	}
}

func TestBuiltinDirNotdir(t *testing.T) {
	s := New()
	got, err := s.Expand("$(dir src/a.c b.c)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "src/ ./" {
		t.Errorf("dir got %q", got)
	}
	got, err = s.Expand("$(notdir src/a.c b.c)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.c b.c" {
		t.Errorf("notdir got %q", got)
	}
}

func TestBuiltinAddprefixAddsuffixJoin(t *testing.T) {
	s := New()
	got, err := s.Expand("$(addprefix src/,a.c b.c)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "src/a.c src/b.c" {
		t.Errorf("addprefix got %q", got)
	}

	got, err = s.Expand("$(addsuffix .o,a b)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.o b.o" {
		t.Errorf("addsuffix got %q", got)
	}

	got, err = s.Expand("$(join a b ,.c .o .h)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a.c b.o .h" {
		t.Errorf("join got %q", got)
	}
}

func TestLazyForeach(t *testing.T) {
	s := New()
	got, err := s.Expand("$(foreach f,a b c,[$(f)])")
	if err != nil {
		t.Fatal(err)
	}
	if got != "[a] [b] [c]" {
		t.Errorf("foreach got %q", got)
	}
}

func TestLazyIfOrAnd(t *testing.T) {
	s := New()
	got, err := s.Expand("$(if ,yes,no)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "no" {
		t.Errorf("if-empty got %q", got)
	}

	got, err = s.Expand("$(or ,,third)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "third" {
		t.Errorf("or got %q", got)
	}

	got, err = s.Expand("$(and a,b,)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("and got %q, want empty", got)
	}
}
