package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mklang/gomk/internal/macro"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseSimpleRule(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Makefile", "CC := echo\nhello: hello.c\n\t$(CC) compiling $< to $@\n")

	p := New(macro.New())
	if err := p.ParseFile(path); err != nil {
		t.Fatal(err)
	}

	m, ok := p.Macros.Lookup("CC")
	if !ok || m.Value != "echo" {
		t.Errorf("CC = %+v, ok=%v", m, ok)
	}

	rule, ok := p.Table.Explicit["hello"]
	if !ok {
		t.Fatal("expected explicit rule for hello")
	}
	if len(rule.Prereqs) != 1 || rule.Prereqs[0] != "hello.c" {
		t.Errorf("prereqs = %v", rule.Prereqs)
	}
	if len(rule.Recipe) != 1 || rule.Recipe[0] != "$(CC) compiling $< to $@" {
		t.Errorf("recipe = %v", rule.Recipe)
	}
}

func TestParseConditional(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Makefile", "DEBUG := 1\nifeq ($(DEBUG),1)\nFLAGS := -g\nelse\nFLAGS := -O2\nendif\n")

	p := New(macro.New())
	if err := p.ParseFile(path); err != nil {
		t.Fatal(err)
	}
	m, ok := p.Macros.Lookup("FLAGS")
	if !ok || m.Value != "-g" {
		t.Errorf("FLAGS = %+v", m)
	}
}

func TestParsePhonyAndInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "extra.mk", "EXTRA := 1\n")
	path := writeFile(t, dir, "Makefile", "include extra.mk\n.PHONY: clean\nclean:\n\trm -f *.o\n")

	p := New(macro.New())
	if err := p.ParseFile(path); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Macros.Lookup("EXTRA"); !ok {
		t.Error("expected EXTRA from included file")
	}
	if !p.Table.Phony["clean"] {
		t.Error("expected clean marked phony")
	}
}

func TestParsePatternRule(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Makefile", "%.o: %.c\n\tcc -c $< -o $@\n")

	p := New(macro.New())
	if err := p.ParseFile(path); err != nil {
		t.Fatal(err)
	}
	if len(p.Table.Patterns) != 1 {
		t.Fatalf("expected 1 pattern rule, got %d", len(p.Table.Patterns))
	}
}
