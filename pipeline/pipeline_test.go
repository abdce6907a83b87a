package pipeline

import (
	"encoding/binary"
	"testing"

	"github.com/wireghost/wireghost/hook"
)

type moveEvent struct {
	X, Y int
}

func (m *moveEvent) Clone() any {
	return &moveEvent{X: m.X, Y: m.Y}
}

type countingCodec struct {
	parseCalls int
	writeCalls int
}

func newCountingCodec() *countingCodec {
	return &countingCodec{}
}

func (c *countingCodec) Parse(opcode hook.Opcode, defVersion int, data []byte) (any, error) {
	c.parseCalls++
	return &moveEvent{X: 1, Y: 2}, nil
}

func (c *countingCodec) Write(opcode hook.Opcode, defVersion int, event any) ([]byte, error) {
	c.writeCalls++
	m := event.(*moveEvent)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, 8)
	binary.LittleEndian.PutUint16(out[2:], uint16(opcode))
	binary.LittleEndian.PutUint16(out[4:], uint16(m.X))
	binary.LittleEndian.PutUint16(out[6:], uint16(m.Y))
	return out, nil
}

type allowAllResolver struct {
	names map[string]hook.Opcode
}

func (r *allowAllResolver) OpcodeForName(name string) (hook.Opcode, bool) {
	op, ok := r.names[name]
	return op, ok
}

func (r *allowAllResolver) LatestDefVersion(name string) (int, bool) { return 2, true }
func (r *allowAllResolver) HasDefVersion(name string, version int) bool { return true }

func newRegistry() *hook.Registry {
	return hook.New(&allowAllResolver{names: map[string]hook.Opcode{
		"Move": 0x10,
		"Echo": 0x1234,
	}})
}

func frame(opcode uint16, payload ...byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[2:], opcode)
	copy(buf[4:], payload)
	return buf
}

func TestRawHookPassthrough(t *testing.T) {
	var gotOpcode hook.Opcode
	var gotData []byte
	var gotIncoming, gotFake bool

	r := newRegistry()
	r.Register("m", false, "Echo", hook.Raw, hook.Options{}, nil, func(op hook.Opcode, data []byte, incoming, fake bool) any {
		gotOpcode, gotData, gotIncoming, gotFake = op, data, incoming, fake
		return nil
	})

	p := New(r, newCountingCodec(), nil)
	in := frame(0x1234, 0xAA, 0xBB)
	out, err := p.Handle(in, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(in) {
		t.Fatalf("expected unchanged bytes, got %v want %v", out, in)
	}
	if gotOpcode != 0x1234 || gotIncoming != true || gotFake != false {
		t.Fatalf("unexpected flags delivered: opcode=%v incoming=%v fake=%v", gotOpcode, gotIncoming, gotFake)
	}
	if len(gotData) != len(in) {
		t.Fatalf("hook did not receive full frame bytes")
	}
}

func TestCloneIsolationNonCommittingHookDoesNotLeak(t *testing.T) {
	codec := newCountingCodec()
	r := newRegistry()

	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 10}, func(event any, fake bool) any {
		m := event.(*moveEvent)
		m.X = 999 // mutate, but do not commit
		return nil
	}, nil)
	var h2Saw *moveEvent
	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 20}, func(event any, fake bool) any {
		h2Saw = event.(*moveEvent)
		return nil
	}, nil)

	p := New(r, codec, nil)
	_, err := p.Handle(frame(0x10), true, false)
	if err != nil {
		t.Fatal(err)
	}
	if h2Saw.X == 999 {
		t.Fatalf("mutation from non-committing hook leaked to later hook")
	}
	if codec.parseCalls != 1 {
		t.Fatalf("expected exactly 1 parse call, got %d", codec.parseCalls)
	}
}

func TestCommitInvalidatesCacheForLaterHooks(t *testing.T) {
	codec := newCountingCodec()
	r := newRegistry()

	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 10}, func(event any, fake bool) any {
		m := event.(*moveEvent)
		m.X = 42
		return true
	}, nil)
	var h2Saw *moveEvent
	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 20}, func(event any, fake bool) any {
		h2Saw = event.(*moveEvent)
		return nil
	}, nil)

	p := New(r, codec, nil)
	out, err := p.Handle(frame(0x10), true, false)
	if err != nil {
		t.Fatal(err)
	}
	if codec.parseCalls != 2 {
		t.Fatalf("expected re-parse after commit, got %d parse calls", codec.parseCalls)
	}
	if h2Saw == nil || h2Saw.X != 1 {
		t.Fatalf("expected H2 to observe a freshly parsed event, got %+v", h2Saw)
	}
	if len(out) == 0 {
		t.Fatalf("expected rewritten bytes")
	}
}

func TestSuppressionFlipsBackOnCommit(t *testing.T) {
	codec := newCountingCodec()
	r := newRegistry()

	silencedOK := hook.DefaultFilter()
	silencedOK.Silenced = hook.Unspecified

	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 10}, func(event any, fake bool) any {
		return false // silence
	}, nil)
	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: 20, Filter: &silencedOK}, func(event any, fake bool) any {
		return true // authoritative overwrite, clears silencing
	}, nil)

	p := New(r, codec, nil)
	out, err := p.Handle(frame(0x10), true, false)
	if err != nil {
		t.Fatalf("expected frame to survive, got suppression: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected rewritten bytes")
	}
}

func TestSuppressedFrameReturnsErrSuppressed(t *testing.T) {
	r := newRegistry()
	r.Register("m", false, "Move", hook.Numbered(2), hook.Options{}, func(event any, fake bool) any {
		return false
	}, nil)
	p := New(r, newCountingCodec(), nil)
	_, err := p.Handle(frame(0x10), true, false)
	if err != ErrSuppressed {
		t.Fatalf("expected ErrSuppressed, got %v", err)
	}
}

func TestParseCacheUniquenessAcrossManyHooks(t *testing.T) {
	codec := newCountingCodec()
	r := newRegistry()
	for i := 0; i < 5; i++ {
		r.Register("m", false, "Move", hook.Numbered(2), hook.Options{Order: i}, func(event any, fake bool) any { return nil }, nil)
	}
	p := New(r, codec, nil)
	if _, err := p.Handle(frame(0x10), true, false); err != nil {
		t.Fatal(err)
	}
	if codec.parseCalls != 1 {
		t.Fatalf("expected 1 parse call across 5 hooks of the same defVersion, got %d", codec.parseCalls)
	}
}
