// Package hook holds the ordered, multi-tenant registry of interception
// callbacks that the dispatch pipeline walks for every frame. It knows
// nothing about wire bytes or codecs; it only knows opcodes, order and
// namespaces.
package hook

import (
	"fmt"
	"time"
)

// Opcode identifies a message under the currently negotiated protocol
// version. Wildcard is the sentinel that matches every opcode.
type Opcode uint16

// Wildcard matches every frame regardless of its real opcode.
const Wildcard Opcode = 0xFFFF

// DefVersion is either a positive schema revision, Any (no codec parse;
// the structured callback receives a copy of the frame bytes) or Raw
// (no parse at all, the raw callback receives the wire bytes).
type DefVersion struct {
	kind  defVersionKind
	value int
}

type defVersionKind uint8

const (
	defVersionNumbered defVersionKind = iota
	defVersionAny
	defVersionRaw
)

// Numbered builds a DefVersion bound to a specific schema revision.
func Numbered(v int) DefVersion { return DefVersion{kind: defVersionNumbered, value: v} }

// Any is the "*" definition version: any revision, value passed raw.
var Any = DefVersion{kind: defVersionAny}

// Raw is the "raw" definition version: no parsing at all.
var Raw = DefVersion{kind: defVersionRaw}

func (d DefVersion) IsNumbered() bool { return d.kind == defVersionNumbered }
func (d DefVersion) IsAny() bool      { return d.kind == defVersionAny }
func (d DefVersion) IsRaw() bool      { return d.kind == defVersionRaw }
func (d DefVersion) Number() int      { return d.value }

func (d DefVersion) String() string {
	switch d.kind {
	case defVersionAny:
		return "*"
	case defVersionRaw:
		return "raw"
	default:
		return fmt.Sprintf("%d", d.value)
	}
}

// Tri is a tri-state predicate: match any, require true, or require false.
type Tri uint8

const (
	Unspecified Tri = iota
	True
	False
)

// Matches reports whether the live flag value satisfies this predicate.
func (t Tri) Matches(v bool) bool {
	switch t {
	case True:
		return v
	case False:
		return !v
	default:
		return true
	}
}

// Filter is evaluated against a frame's live flags before a hook runs.
type Filter struct {
	Fake     Tri
	Incoming Tri
	Modified Tri
	Silenced Tri
}

// DefaultFilter mirrors the defaults from the specification: a hook does
// not see fake or silenced frames unless it explicitly opts in.
func DefaultFilter() Filter {
	return Filter{Fake: False, Incoming: Unspecified, Modified: Unspecified, Silenced: False}
}

// Matches evaluates all four predicates against the live flag snapshot.
func (f Filter) Matches(fake, incoming, modified, silenced bool) bool {
	return f.Fake.Matches(fake) &&
		f.Incoming.Matches(incoming) &&
		f.Modified.Matches(modified) &&
		f.Silenced.Matches(silenced)
}

// Callback is invoked for a structured (parsed) hook. event is either the
// parsed value or, for DefVersion Any, the raw bytes. Returning true commits
// a mutation, false requests suppression, anything else leaves state alone.
type Callback func(event any, fake bool) any

// RawCallback is invoked for a DefVersion Raw hook and receives the wire
// bytes directly, along with direction flags.
type RawCallback func(opcode Opcode, data []byte, incoming, fake bool) any

// Options configures an individual registration. A nil Filter takes the
// specification's default (fake=false, silenced=false, incoming and
// modified unspecified).
type Options struct {
	Order   int
	Filter  *Filter
	Timeout *TimeoutOptions
}

// TimeoutOptions arms a one-shot timer on a hook; if it fires before the
// hook is ever invoked for real, Unregister is called and the callback
// receives a single nil delivery.
type TimeoutOptions struct {
	Duration time.Duration
}

// Handle is an opaque reference returned by Register, used to Unregister.
type Handle struct {
	id uint64
}

// Hook is the record stored in the registry. MessageName is kept purely
// for diagnostics; opcode is what dispatch actually matches on.
type Hook struct {
	handle      Handle
	Namespace   string
	Opcode      Opcode
	MessageName string
	DefVersion  DefVersion
	Filter      Filter
	Order       int
	Callback    Callback
	RawCallback RawCallback
	timeoutID   uint64 // not set; the registry keys armed timers by handle id
}

func (h *Hook) Handle() Handle { return h.handle }

func (h *Hook) String() string {
	return fmt.Sprintf("hook[ns=%s op=%d msg=%s defv=%s order=%d]",
		h.Namespace, h.Opcode, h.MessageName, h.DefVersion, h.Order)
}
