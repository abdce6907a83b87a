// Package codec provides the wire-format backends and the reference
// multi-codec registry that implements the Codec Registry contract the
// Dispatch Core depends on (see the External Interfaces section of the
// specification this module follows).
package codec

// Backend encodes and decodes a single Go value to and from wire bytes.
// Each registered message is bound to exactly one Backend; different
// message families can use whichever wire format suits them best, the
// way the original protocol mixed formats per message family.
type Backend interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}
