package sysmsg

import "testing"

func TestParseResolvesNumericIDThroughTable(t *testing.T) {
	table := New()
	table.Register(1, "GuildInvite", 42)

	msg, err := Parse(table, 1, "@42\vguild\vDragons\vfrom\vAlice")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "GuildInvite" {
		t.Fatalf("expected resolved name, got %q", msg.ID)
	}
	if len(msg.Pairs) != 2 || msg.Pairs[0].Key != "guild" || msg.Pairs[1].Value != "Alice" {
		t.Fatalf("unexpected pairs: %+v", msg.Pairs)
	}
}

func TestParseKeepsLiteralIDVerbatim(t *testing.T) {
	table := New()
	msg, err := Parse(table, 1, "@ns:custom\vk\vv")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "ns:custom" {
		t.Fatalf("expected literal id kept verbatim, got %q", msg.ID)
	}
}

func TestBuildIsParseInverse(t *testing.T) {
	table := New()
	table.Register(1, "GuildInvite", 42)

	raw, err := Build(table, 1, "GuildInvite", []Pair{{Key: "guild", Value: "Dragons"}})
	if err != nil {
		t.Fatal(err)
	}
	if raw != "@42\vguild\vDragons" {
		t.Fatalf("unexpected wire text: %q", raw)
	}

	msg, err := Parse(table, 1, raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "GuildInvite" {
		t.Fatalf("round trip lost id: %q", msg.ID)
	}
}

func TestVersionFallsBackToNearestLowerKnownVersion(t *testing.T) {
	table := New()
	table.Register(1, "Old", 1)
	table.Register(3, "New", 2)

	if name, ok := table.NameForCode(5, 2); !ok || name != "New" {
		t.Fatalf("expected fallback to version 3's table, got %q ok=%v", name, ok)
	}
}

func TestBuildUnknownNameFails(t *testing.T) {
	table := New()
	if _, err := Build(table, 1, "Missing", nil); err == nil {
		t.Fatal("expected error for unmapped name")
	}
}
