package codec

import "testing"

type moveV1 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestRegisterAndRoundTripThroughJSONBackend(t *testing.T) {
	r := New()
	r.RegisterMessage(1, "Move", 0x10, 1, moveV1{}, NewJSONBackend())
	r.SetActiveProtocolVersion(1)

	op, ok := r.OpcodeForName("Move")
	if !ok || op != 0x10 {
		t.Fatalf("expected opcode 0x10, got %d ok=%v", op, ok)
	}

	bytes, err := r.Write(0x10, 1, &moveV1{X: 3, Y: 4})
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := r.Parse(0x10, 1, bytes)
	if err != nil {
		t.Fatal(err)
	}
	m := parsed.(*moveV1)
	if m.X != 3 || m.Y != 4 {
		t.Fatalf("round trip mismatch: %+v", m)
	}
}

func TestLatestDefVersionTracksHighestRegistered(t *testing.T) {
	r := New()
	r.RegisterMessage(1, "Move", 0x10, 1, moveV1{}, NewJSONBackend())
	r.RegisterMessage(1, "Move", 0x10, 3, moveV1{}, NewJSONBackend())
	r.RegisterMessage(1, "Move", 0x10, 2, moveV1{}, NewJSONBackend())

	latest, ok := r.LatestDefVersion("Move")
	if !ok || latest != 3 {
		t.Fatalf("expected latest=3, got %d ok=%v", latest, ok)
	}
	if !r.HasDefVersion("Move", 2) {
		t.Fatal("expected version 2 to be known")
	}
	if r.HasDefVersion("Move", 9) {
		t.Fatal("version 9 should not be known")
	}
}

func TestParseUnknownOpcodeFails(t *testing.T) {
	r := New()
	r.SetActiveProtocolVersion(1)
	if _, err := r.Parse(0xFF, 1, nil); err == nil {
		t.Fatal("expected error for unmapped opcode")
	}
}
