package codec

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/hook"
)

// ErrUnmappedName and friends are the Codec Registry's half of the
// error kinds the specification's Error Handling Design names.
var (
	ErrUnmappedName      = errors.New("codec: message name not mapped for active protocol version")
	ErrUnknownOpcode     = errors.New("codec: opcode not mapped for active protocol version")
	ErrUnknownDefVersion = errors.New("codec: definition version not known for message")
	ErrNoActiveProtocol  = errors.New("codec: no protocol version selected")
)

// ProtoMap is the name/opcode map bound to one protocol version, the
// way the teacher's IdMsgMapper binds message ids to concrete types for
// one wire generation.
type ProtoMap struct {
	Name map[string]hook.Opcode
	Code map[hook.Opcode]string
}

// schema binds one definition version of one message to a concrete Go
// type and the backend that (de)serializes it.
type schema struct {
	elemType reflect.Type // non-pointer struct type; Parse allocates a pointer to it
	backend  Backend
}

// messageDef is the full per-name record: every definition version ever
// registered for that name, independent of which protocol versions map
// the name to which opcode.
type messageDef struct {
	versions map[int]schema
	latest   int
}

// Registry is the reference Codec Registry: it satisfies both
// pipeline.EventCodec and hook.Resolver, and is the natural thing a
// Dispatch instance holds for its whole lifetime.
type Registry struct {
	mu        sync.RWMutex
	maps      map[int]*ProtoMap
	messages  map[string]*messageDef
	revisions map[int]string
	activeVer int
	hasActive bool
}

// New creates an empty Registry. Call RegisterMessage to populate it
// before constructing a Dispatch around it.
func New() *Registry {
	return &Registry{
		maps:      make(map[int]*ProtoMap),
		messages:  make(map[string]*messageDef),
		revisions: make(map[int]string),
	}
}

// RegisterRevision binds protoVer to its revision string (the
// "(REGION-)?MAJOR(.MINOR)?(/SYSMSG)?" text SetProtocolVersion parses).
func (r *Registry) RegisterRevision(protoVer int, revision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revisions[protoVer] = revision
}

// RevisionString resolves protoVer to its revision string.
func (r *Registry) RevisionString(protoVer int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.revisions[protoVer]
	return rev, ok
}

// RegisterMessage binds message name to opcode under protoVer, and
// binds definition version defVer of that message to the type of
// sample (a non-pointer struct value; Parse allocates fresh instances
// via reflection the way the teacher's IdMsgMapper does) using backend
// for wire (de)serialization. Safe to call repeatedly for the same name
// across multiple protocol versions and/or definition versions.
func (r *Registry) RegisterMessage(protoVer int, name string, opcode hook.Opcode, defVer int, sample any, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.maps[protoVer]
	if !ok {
		m = &ProtoMap{Name: make(map[string]hook.Opcode), Code: make(map[hook.Opcode]string)}
		r.maps[protoVer] = m
	}
	m.Name[name] = opcode
	m.Code[opcode] = name

	def, ok := r.messages[name]
	if !ok {
		def = &messageDef{versions: make(map[int]schema)}
		r.messages[name] = def
	}
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	def.versions[defVer] = schema{elemType: t, backend: backend}
	if defVer > def.latest {
		def.latest = defVer
	}
}

// SetActiveProtocolVersion selects which ProtoMap OpcodeForName,
// NameForOpcode, Parse and Write consult. The
// Dispatch Facade calls this from SetProtocolVersion.
func (r *Registry) SetActiveProtocolVersion(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeVer = v
	r.hasActive = true
}

// NameForOpcode resolves opcode to a message name under the active
// protocol version.
func (r *Registry) NameForOpcode(opcode hook.Opcode) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.maps[r.activeVer]
	if !ok {
		return "", false
	}
	name, ok := m.Code[opcode]
	return name, ok
}

// OpcodeForName implements hook.Resolver.
func (r *Registry) OpcodeForName(name string) (hook.Opcode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.maps[r.activeVer]
	if !ok {
		return 0, false
	}
	op, ok := m.Name[name]
	return op, ok
}

// LatestDefVersion implements hook.Resolver.
func (r *Registry) LatestDefVersion(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.messages[name]
	if !ok {
		return 0, false
	}
	return def.latest, true
}

// HasDefVersion implements hook.Resolver.
func (r *Registry) HasDefVersion(name string, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.messages[name]
	if !ok {
		return false
	}
	_, ok = def.versions[version]
	return ok
}

// Parse implements pipeline.EventCodec: data is a complete frame (4-byte
// header included, per the pipeline's frame ownership), so only the
// payload past the header is handed to the backend.
func (r *Registry) Parse(opcode hook.Opcode, defVer int, data []byte) (any, error) {
	name, sch, err := r.lookup(opcode, defVer)
	if err != nil {
		return nil, err
	}
	payload := data
	if len(data) >= 4 {
		payload = data[4:]
	}
	inst := reflect.New(sch.elemType).Interface()
	if err := sch.backend.Decode(payload, inst); err != nil {
		return nil, errors.Wrapf(err, "codec: parse %q defv=%d", name, defVer)
	}
	return inst, nil
}

// Write implements pipeline.EventCodec: re-encode event using the
// backend bound to (name, defVer) and frame it with the standard
// 4-byte header (2-byte length prefix, then 2-byte opcode).
func (r *Registry) Write(opcode hook.Opcode, defVer int, event any) ([]byte, error) {
	name, sch, err := r.lookup(opcode, defVer)
	if err != nil {
		return nil, err
	}
	payload, err := sch.backend.Encode(event)
	if err != nil {
		return nil, errors.Wrapf(err, "codec: write %q defv=%d", name, defVer)
	}
	return frameOf(opcode, payload), nil
}

func (r *Registry) lookup(opcode hook.Opcode, defVer int) (string, schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasActive {
		return "", schema{}, ErrNoActiveProtocol
	}
	return r.lookupUnder(r.activeVer, opcode, defVer)
}

// ParseUnderProtocolVersion parses data as if protoVer were active,
// without disturbing the Registry's actual active version. Used for
// the version-negotiation probe frame, which by definition arrives
// before any protocol version has been selected.
func (r *Registry) ParseUnderProtocolVersion(protoVer int, opcode hook.Opcode, defVer int, data []byte) (any, error) {
	r.mu.RLock()
	_, sch, err := r.lookupUnder(protoVer, opcode, defVer)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	payload := data
	if len(data) >= 4 {
		payload = data[4:]
	}
	inst := reflect.New(sch.elemType).Interface()
	if err := sch.backend.Decode(payload, inst); err != nil {
		return nil, errors.Wrapf(err, "codec: parse under protoVer=%d", protoVer)
	}
	return inst, nil
}

// FirstProtocolVersion returns the lowest protocol version that has
// any message mapped, the way version negotiation needs a version to
// parse the probe frame under before any version is actually active.
func (r *Registry) FirstProtocolVersion() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	first := 0
	found := false
	for v := range r.maps {
		if !found || v < first {
			first = v
			found = true
		}
	}
	return first, found
}

func (r *Registry) lookupUnder(protoVer int, opcode hook.Opcode, defVer int) (string, schema, error) {
	m, ok := r.maps[protoVer]
	if !ok {
		return "", schema{}, ErrNoActiveProtocol
	}
	name, ok := m.Code[opcode]
	if !ok {
		return "", schema{}, errors.Wrapf(ErrUnknownOpcode, "opcode %d", opcode)
	}
	def, ok := r.messages[name]
	if !ok {
		return name, schema{}, errors.Wrapf(ErrUnmappedName, "name %q", name)
	}
	sch, ok := def.versions[defVer]
	if !ok {
		return name, schema{}, errors.Wrapf(ErrUnknownDefVersion, "name %q defv=%d", name, defVer)
	}
	return name, sch, nil
}

// frameOf builds a wire frame: 2-byte little-endian length, 2-byte
// little-endian opcode, then payload. The length field only needs to
// hold message sizes under 64KiB; larger frames are outside what this
// wire format was ever designed to carry.
func frameOf(opcode hook.Opcode, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	length := uint16(len(out))
	out[0] = byte(length)
	out[1] = byte(length >> 8)
	out[2] = byte(opcode)
	out[3] = byte(opcode >> 8)
	copy(out[4:], payload)
	return out
}
