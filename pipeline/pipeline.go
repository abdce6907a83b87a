// Package pipeline implements the Handler Pipeline: given a frame and the
// ordered hooks that apply to its opcode, it runs each hook in turn,
// tracking mutation and suppression state and caching parsed values so
// that hooks sharing a definition version only pay for one decode.
package pipeline

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/hook"
)

// ErrSuppressed is returned by Handle when a hook has requested the
// frame be dropped rather than forwarded.
var ErrSuppressed = errors.New("pipeline: frame suppressed")

// ErrFrameTooShort means the buffer is not even long enough to hold the
// length prefix and opcode.
var ErrFrameTooShort = errors.New("pipeline: frame shorter than header")

// EventCodec is the slice of the Codec Registry the pipeline needs at
// dispatch time: parse wire bytes into a structured value for a given
// opcode/defVersion, and re-serialize a mutated value back to bytes.
type EventCodec interface {
	Parse(opcode hook.Opcode, defVersion int, data []byte) (any, error)
	Write(opcode hook.Opcode, defVersion int, event any) ([]byte, error)
}

// HookSource supplies the ordered hooks for an opcode. hook.Registry
// satisfies this.
type HookSource interface {
	IterateForCode(opcode hook.Opcode) []*hook.Hook
	HasAny(opcode hook.Opcode) bool
}

// ErrorSink receives diagnostics for runtime failures the pipeline
// swallows rather than propagates (a buggy hook must not take the whole
// proxy down). fields carries structured context for logging.
type ErrorSink func(msg string, err error, fields map[string]any)

// Pipeline runs the Handler Pipeline algorithm for one Dispatch instance.
type Pipeline struct {
	Hooks  HookSource
	Codec  EventCodec
	OnError ErrorSink
}

// New builds a Pipeline. onError may be nil, in which case diagnostics
// are dropped silently (tests commonly do this).
func New(hooks HookSource, codec EventCodec, onError ErrorSink) *Pipeline {
	if onError == nil {
		onError = func(string, error, map[string]any) {}
	}
	return &Pipeline{Hooks: hooks, Codec: codec, OnError: onError}
}

// OpcodeOf extracts the little-endian opcode at offset 2 of a frame.
func OpcodeOf(data []byte) (hook.Opcode, error) {
	if len(data) < 4 {
		return 0, ErrFrameTooShort
	}
	return hook.Opcode(binary.LittleEndian.Uint16(data[2:4])), nil
}

// Handle runs every applicable hook against data in deterministic order
// and returns the (possibly rewritten) bytes, or ErrSuppressed if a hook
// asked for the frame to be dropped.
func (p *Pipeline) Handle(data []byte, incoming, fake bool) ([]byte, error) {
	opcode, err := OpcodeOf(data)
	if err != nil {
		return data, nil
	}
	if !p.Hooks.HasAny(opcode) {
		return data, nil
	}

	original := append([]byte(nil), data...)
	state := &liveState{}
	current := append([]byte(nil), data...)

	eventCache := make(map[int]any)
	hooks := p.Hooks.IterateForCode(opcode)

	for i, h := range hooks {
		flags := Flags{state: state, Fake: fake, Incoming: incoming}
		if !h.Filter.Matches(flags.Fake, flags.Incoming, flags.Modified(), flags.Silenced()) {
			continue
		}

		if h.DefVersion.IsRaw() {
			current, state.modified, state.silenced = p.runRaw(h, opcode, current, original, incoming, fake, state)
			continue
		}

		current, eventCache = p.runStructured(h, hooks, i, opcode, current, eventCache, flags)
	}

	if state.silenced {
		return nil, ErrSuppressed
	}
	return current, nil
}

func (p *Pipeline) runRaw(h *hook.Hook, opcode hook.Opcode, current, original []byte, incoming, fake bool, state *liveState) ([]byte, bool, bool) {
	modified, silenced := state.modified, state.silenced
	result := p.invokeRaw(h, opcode, current, incoming, fake)

	if buf, ok := result.([]byte); ok {
		if !bytes.Equal(buf, current) {
			modified = modified || len(buf) != len(current) || !bytes.Equal(buf, current)
			current = buf
		}
		return current, modified, silenced
	}

	modified = modified || !bytes.Equal(current, original)
	if b, ok := result.(bool); ok {
		silenced = !b
	}
	return current, modified, silenced
}

func (p *Pipeline) invokeRaw(h *hook.Hook, opcode hook.Opcode, data []byte, incoming, fake bool) (result any) {
	defer func() {
		if r := recover(); r != nil {
			p.OnError("hook callback panicked", fmt.Errorf("%v", r), map[string]any{
				"hook": h.String(), "opcode": opcode,
			})
			result = nil
		}
	}()
	if h.RawCallback == nil {
		return nil
	}
	return h.RawCallback(opcode, data, incoming, fake)
}

func (p *Pipeline) runStructured(h *hook.Hook, hooks []*hook.Hook, index int, opcode hook.Opcode, current []byte, eventCache map[int]any, flags Flags) ([]byte, map[int]any) {
	defVersion := versionKey(h.DefVersion)

	event, err := p.obtainEvent(h, opcode, defVersion, current, eventCache)
	if err != nil {
		p.OnError("parse failed, hook skipped", err, map[string]any{
			"hook": h.String(), "opcode": opcode, "defVersion": defVersion,
		})
		return current, eventCache
	}

	isLast := isLastConsumer(hooks, index, defVersion)
	var callbackEvent any
	if isLast {
		callbackEvent = event
	} else {
		callbackEvent = DeepClone(event)
	}

	snap := flags.Snapshot()
	result := p.invokeStructured(h, callbackEvent, snap, flags.Fake)

	switch v := result.(type) {
	case bool:
		if v {
			flags.state.modified = true
			flags.state.silenced = false
			data, werr := p.Codec.Write(opcode, defVersion, callbackEvent)
			if werr != nil {
				p.OnError("re-write failed after hook commit", werr, map[string]any{
					"hook": h.String(), "opcode": opcode, "defVersion": defVersion,
				})
				return current, eventCache
			}
			eventCache = make(map[int]any)
			return data, eventCache
		}
		flags.state.silenced = true
		return current, eventCache
	default:
		if isLast {
			eventCache[defVersion] = callbackEvent
		}
		return current, eventCache
	}
}

func (p *Pipeline) invokeStructured(h *hook.Hook, event any, flags Snapshot, fake bool) (result any) {
	defer func() {
		if r := recover(); r != nil {
			p.OnError("hook callback panicked", fmt.Errorf("%v", r), map[string]any{
				"hook": h.String(),
			})
			result = nil
		}
	}()
	if h.Callback == nil {
		return nil
	}
	return h.Callback(withSnapshot(event, flags), fake)
}

// withSnapshot is a seam: codec value types that want to expose flags to
// the callback implement FlagAware; plain values pass through untouched.
func withSnapshot(event any, flags Snapshot) any {
	if fa, ok := event.(FlagAware); ok {
		fa.SetFlags(flags)
	}
	return event
}

// FlagAware lets a codec-provided parsed value carry the frame flags
// snapshot alongside its own fields, the way the specification describes
// flags being attached to the event "before handing to a callback".
type FlagAware interface {
	SetFlags(Snapshot)
}

func (p *Pipeline) obtainEvent(h *hook.Hook, opcode hook.Opcode, defVersion int, data []byte, cache map[int]any) (any, error) {
	if h.DefVersion.IsAny() {
		return append([]byte(nil), data...), nil
	}
	if v, ok := cache[defVersion]; ok {
		return v, nil
	}
	v, err := p.Codec.Parse(opcode, defVersion, data)
	if err != nil {
		return nil, err
	}
	cache[defVersion] = v
	return v, nil
}

// versionKey maps a DefVersion to the int key used by eventCache. "*" is
// bucketed at 0 (no numbered schema ever uses 0) since it always yields
// raw bytes, never a shared structured cache entry that mutation safety
// rules apply to.
func versionKey(d hook.DefVersion) int {
	if d.IsNumbered() {
		return d.Number()
	}
	return 0
}

func isLastConsumer(hooks []*hook.Hook, index int, defVersion int) bool {
	for j := index + 1; j < len(hooks); j++ {
		if hooks[j].DefVersion.IsNumbered() && hooks[j].DefVersion.Number() == defVersion {
			return false
		}
	}
	return true
}
