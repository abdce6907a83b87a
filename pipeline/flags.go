package pipeline

// Flags is the read-through view of a frame's dynamic state: fake and
// incoming never change during a Handle invocation, while modified and
// silenced are live — a callback that reads Flags mid-invocation sees
// whatever the pipeline has observed so far, not a stale snapshot taken
// when the callback started running.
type Flags struct {
	state *liveState
	Fake     bool
	Incoming bool
}

func (f Flags) Modified() bool { return f.state.modified }
func (f Flags) Silenced() bool { return f.state.silenced }

// Snapshot freezes the four flags at the instant it's called, for
// attaching to a parsed event (events, unlike bytes, never observe a
// flag change after the fact per the specification).
type Snapshot struct {
	Fake     bool
	Incoming bool
	Modified bool
	Silenced bool
}

func (f Flags) Snapshot() Snapshot {
	return Snapshot{Fake: f.Fake, Incoming: f.Incoming, Modified: f.state.modified, Silenced: f.state.silenced}
}

type liveState struct {
	modified bool
	silenced bool
}
