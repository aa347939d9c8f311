package shellbridge

import (
	"context"
	"testing"
)

func TestContainsPipeOrRedirect(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"echo hi", false},
		{"echo 'a | b'", false},
		{`echo "redirect > here"`, false},
		{"cat a | wc -l", true},
		{"echo hi > out.txt", true},
		{"echo hi && echo bye", false},
	}
	for _, c := range cases {
		if got := containsPipeOrRedirect(c.in); got != c.want {
			t.Errorf("containsPipeOrRedirect(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

type fakeBridge struct {
	called  bool
	command string
}

func (f *fakeBridge) Run(ctx context.Context, command string, env []string, dir string) (int, error) {
	f.called = true
	f.command = command
	return 0, nil
}

func TestEmbeddedSystemShellPipesCollapsesToFallback(t *testing.T) {
	fallback := &fakeBridge{}
	e := NewEmbedded()
	e.SystemShellPipes = true
	e.Fallback = fallback

	code, err := e.Run(context.Background(), "cat a | wc -l", nil, ".")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}
	if !fallback.called {
		t.Error("expected command containing a pipe to be handed to Fallback")
	}
	if fallback.command != "cat a | wc -l" {
		t.Errorf("fallback command = %q, want unchanged original", fallback.command)
	}
}

func TestEmbeddedSystemShellPipesDisabledByDefault(t *testing.T) {
	fallback := &fakeBridge{}
	e := NewEmbedded()
	e.Fallback = fallback

	if _, err := e.Run(context.Background(), "echo hi", nil, "."); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if fallback.called {
		t.Error("Fallback should not be used when SystemShellPipes is false")
	}
}
