package modulehost

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/hook"
)

type fakeRegistrar struct {
	registered map[hook.Handle]string // handle -> namespace
	next       uint64
	removedNS  []string
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[hook.Handle]string)}
}

func (f *fakeRegistrar) Register(namespace string, wildcard bool, nameOrOpcode string, defVersion hook.DefVersion, opts hook.Options, cb hook.Callback, rawCb hook.RawCallback) (hook.Handle, error) {
	f.next++
	return hook.Handle{}, nil
}

func (f *fakeRegistrar) Unregister(handle hook.Handle) {}

func (f *fakeRegistrar) UnregisterNamespace(namespace string) int {
	f.removedNS = append(f.removedNS, namespace)
	return 2
}

type fakeWriter struct{}

func (fakeWriter) Write(outgoing bool, nameOrBytes any, version int, data any) (bool, error) {
	return true, nil
}

type fakeLoader struct {
	ctors map[string]Constructor
}

func (l *fakeLoader) Resolve(name string) (Constructor, bool) {
	c, ok := l.ctors[name]
	return c, ok
}

type greeterModule struct {
	destroyed bool
}

func (g *greeterModule) Destructor() { g.destroyed = true }

func TestLoadReturnsExistingInstanceWithoutReconstructing(t *testing.T) {
	calls := 0
	loader := &fakeLoader{ctors: map[string]Constructor{
		"greeter": func(w *Wrapper, args ...any) (any, error) {
			calls++
			return &greeterModule{}, nil
		},
	}}
	h := New(newFakeRegistrar(), fakeWriter{}, nil)

	first, err := h.Load("greeter", loader)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.Load("greeter", loader)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected same instance on second load")
	}
	if calls != 1 {
		t.Fatalf("expected constructor called once, got %d", calls)
	}
}

func TestLoadFailureRollsBackHooks(t *testing.T) {
	loader := &fakeLoader{ctors: map[string]Constructor{
		"broken": func(w *Wrapper, args ...any) (any, error) {
			w.Hook(false, "Move", hook.Numbered(1), hook.Options{}, nil, nil)
			return nil, errors.New("boom")
		},
	}}
	reg := newFakeRegistrar()
	h := New(reg, fakeWriter{}, nil)

	if _, err := h.Load("broken", loader); err == nil {
		t.Fatal("expected load failure")
	}
	if len(reg.removedNS) != 1 || reg.removedNS[0] != "broken" {
		t.Fatalf("expected rollback of namespace 'broken', got %v", reg.removedNS)
	}
	if h.Loaded("broken") {
		t.Fatal("module should not be registered after failed load")
	}
}

func TestUnloadRunsDestructorAndRemovesHooks(t *testing.T) {
	mod := &greeterModule{}
	loader := &fakeLoader{ctors: map[string]Constructor{
		"greeter": func(w *Wrapper, args ...any) (any, error) { return mod, nil },
	}}
	reg := newFakeRegistrar()
	h := New(reg, fakeWriter{}, nil)
	if _, err := h.Load("greeter", loader); err != nil {
		t.Fatal(err)
	}

	if !h.Unload("greeter") {
		t.Fatal("expected unload to succeed")
	}
	if !mod.destroyed {
		t.Fatal("expected destructor to run")
	}
	if len(reg.removedNS) != 1 || reg.removedNS[0] != "greeter" {
		t.Fatalf("expected hooks removed for 'greeter', got %v", reg.removedNS)
	}
	if h.Loaded("greeter") {
		t.Fatal("module should no longer be loaded")
	}
	if h.Unload("greeter") {
		t.Fatal("second unload should report false")
	}
}

func TestUnloadNeverLoadedReturnsFalse(t *testing.T) {
	h := New(newFakeRegistrar(), fakeWriter{}, nil)
	if h.Unload("ghost") {
		t.Fatal("expected false for never-loaded module")
	}
}
