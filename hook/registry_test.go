package hook

import (
	"testing"
	"time"
)

type fakeResolver struct {
	names   map[string]Opcode
	latest  map[string]int
	known   map[string]map[int]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		names:  map[string]Opcode{"Move": 0x1234, "Chat": 0x10},
		latest: map[string]int{"Move": 2, "Chat": 1},
		known: map[string]map[int]bool{
			"Move": {1: true, 2: true},
			"Chat": {1: true},
		},
	}
}

func (f *fakeResolver) OpcodeForName(name string) (Opcode, bool) {
	op, ok := f.names[name]
	return op, ok
}

func (f *fakeResolver) LatestDefVersion(name string) (int, bool) {
	v, ok := f.latest[name]
	return v, ok
}

func (f *fakeResolver) HasDefVersion(name string, version int) bool {
	return f.known[name][version]
}

func TestOrderDeterminismWildcardWinsTies(t *testing.T) {
	r := New(newFakeResolver())
	var seq []string

	cb := func(tag string) Callback {
		return func(event any, fake bool) any {
			seq = append(seq, tag)
			return nil
		}
	}

	if _, err := r.Register("m1", true, "", Raw, Options{Order: 5}, nil, func(op Opcode, data []byte, incoming, fake bool) any {
		seq = append(seq, "wildcard")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("m2", false, "Move", Numbered(2), Options{Order: 5}, cb("opcode"), nil); err != nil {
		t.Fatal(err)
	}

	hooks := r.IterateForCode(0x1234)
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].RawCallback == nil {
		t.Fatalf("expected wildcard hook first on tie, got %v", hooks[0])
	}
}

func TestOrderDeterminismAscendingOrder(t *testing.T) {
	r := New(newFakeResolver())
	if _, err := r.Register("m", false, "Move", Numbered(2), Options{Order: 20}, func(e any, f bool) any { return nil }, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("m", false, "Move", Numbered(2), Options{Order: 10}, func(e any, f bool) any { return nil }, nil); err != nil {
		t.Fatal(err)
	}
	hooks := r.IterateForCode(0x1234)
	if len(hooks) != 2 || hooks[0].Order != 10 || hooks[1].Order != 20 {
		t.Fatalf("unexpected order: %+v", hooks)
	}
}

func TestRegisterRejectsObsoleteAndUnknownDefVersion(t *testing.T) {
	r := New(newFakeResolver())
	if _, err := r.Register("m", false, "Move", Numbered(1), Options{}, func(e any, f bool) any { return nil }, nil); err == nil {
		t.Fatal("expected obsolete definition error")
	}
	if _, err := r.Register("m", false, "Move", Numbered(9), Options{}, func(e any, f bool) any { return nil }, nil); err == nil {
		t.Fatal("expected unknown definition error")
	}
}

func TestWildcardForbidsNumberedDefVersion(t *testing.T) {
	r := New(newFakeResolver())
	if _, err := r.Register("m", true, "", Numbered(1), Options{}, func(e any, f bool) any { return nil }, nil); err == nil {
		t.Fatal("expected wildcard+numbered rejection")
	}
}

func TestUnregisterNamespaceRemovesAll(t *testing.T) {
	r := New(newFakeResolver())
	r.Register("modA", false, "Move", Numbered(2), Options{}, func(e any, f bool) any { return nil }, nil)
	r.Register("modA", false, "Chat", Numbered(1), Options{}, func(e any, f bool) any { return nil }, nil)
	r.Register("modB", false, "Move", Numbered(2), Options{Order: 1}, func(e any, f bool) any { return nil }, nil)

	removed := r.UnregisterNamespace("modA")
	if removed != 2 {
		t.Fatalf("expected to remove 2 hooks, removed %d", removed)
	}
	for _, h := range r.IterateForCode(0x1234) {
		if h.Namespace == "modA" {
			t.Fatalf("modA hook still reachable: %v", h)
		}
	}
	for _, h := range r.IterateForCode(0x10) {
		if h.Namespace == "modA" {
			t.Fatalf("modA hook still reachable on Chat opcode: %v", h)
		}
	}
}

func TestUnregisterIsSafeDuringIteration(t *testing.T) {
	r := New(newFakeResolver())
	var selfHandle Handle
	var ran []string
	selfHandle, _ = r.Register("m", false, "Move", Numbered(2), Options{Order: 1}, func(e any, f bool) any {
		ran = append(ran, "self")
		r.Unregister(selfHandle)
		return nil
	}, nil)
	r.Register("m", false, "Move", Numbered(2), Options{Order: 2}, func(e any, f bool) any {
		ran = append(ran, "after")
		return nil
	}, nil)

	for _, h := range r.IterateForCode(0x1234) {
		h.Callback(nil, false)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both hooks to run, got %v", ran)
	}
	if r.HasAny(0x1234) == false {
		t.Fatalf("expected remaining hook to still be registered")
	}
}

func TestTimeoutFiresOnceWithNilAndRemovesHook(t *testing.T) {
	r := New(newFakeResolver())
	done := make(chan any, 1)
	handle, err := r.Register("m", false, "Move", Numbered(2), Options{
		Timeout: &TimeoutOptions{Duration: 10 * time.Millisecond},
	}, func(event any, fake bool) any {
		done <- event
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-done:
		if v != nil {
			t.Fatalf("expected nil delivery, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}

	time.Sleep(5 * time.Millisecond)
	for _, h := range r.IterateForCode(0x1234) {
		if h.Handle() == handle {
			t.Fatal("hook should have been removed after timeout fired")
		}
	}
}
