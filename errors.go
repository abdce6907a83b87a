package wireghost

import "github.com/pkg/errors"

// Error kinds from the specification's Error Handling Design. Each is
// a sentinel; call sites wrap it with errors.Wrapf for context and
// callers use errors.Is / errors.Cause to recover the kind.
var (
	// ErrInvalidArgument covers bad hook parameters, bad version
	// strings, non-object system messages, and missing ids.
	ErrInvalidArgument = errors.New("wireghost: invalid argument")
	// ErrUnmappedName means a message name is not in the current
	// protocol map.
	ErrUnmappedName = errors.New("wireghost: message name not mapped")
	// ErrCodecFailure wraps a Parse or Write failure from the Codec
	// Registry.
	ErrCodecFailure = errors.New("wireghost: codec failure")
)

// ObsoleteDefinition and UnknownDefinition are owned by the hook
// package (hook.ErrObsoleteDefinition, hook.ErrUnknownDefinition)
// since Register is where that distinction is made; CallbackFailure
// is logged with full context by the pipeline package rather than
// returned, so no sentinel for it is exported here. See DESIGN.md.
