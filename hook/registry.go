package hook

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Registration errors. Register wraps ErrUnmappedName,
// ErrObsoleteDefinition and ErrUnknownDefinition with the message name
// and versions; callers such as modulehost.Wrapper pass them on as-is.
// ErrUnknownHandle is not returned by any function of this package.
var (
	ErrInvalidDefVersion     = errors.New("hookregistry: definition version must be positive, \"*\" or \"raw\"")
	ErrWildcardNeedsRawOrAny = errors.New("hookregistry: wildcard opcode hooks must use \"*\" or \"raw\"")
	ErrUnknownHandle         = errors.New("hookregistry: unknown hook handle")
	// ErrUnmappedName means a message name passed to Register does not
	// resolve to an opcode under the Resolver's currently active
	// protocol version.
	ErrUnmappedName = errors.New("hookregistry: message name not mapped")
	// ErrObsoleteDefinition means the requested defVersion is older than
	// the latest schema revision the codec knows for this message name.
	ErrObsoleteDefinition = errors.New("hookregistry: definition version is obsolete")
	// ErrUnknownDefinition means the requested defVersion is newer than,
	// or otherwise unknown to, the codec.
	ErrUnknownDefinition = errors.New("hookregistry: definition version is unknown")
)

// Resolver is the slice of the Codec Registry that the Hook Registry needs
// at registration time: turning a message name into an opcode and knowing
// the latest schema revision known for that name.
type Resolver interface {
	// OpcodeForName resolves a message name to its opcode under the
	// currently active protocol version. ok is false if unknown.
	OpcodeForName(name string) (Opcode, bool)
	// LatestDefVersion returns the newest known schema revision for a
	// message name, or ok=false if the name has no versioned schema at
	// all (e.g. unstructured messages).
	LatestDefVersion(name string) (int, bool)
	// HasDefVersion reports whether a specific revision is known.
	HasDefVersion(name string, version int) bool
}

// group is a HookGroup: hooks sharing one opcode and one Order.
type group struct {
	order int
	hooks []*Hook
}

// ordering is the per-opcode sequence of groups, sorted by ascending order.
type ordering struct {
	groups []*group
}

func (o *ordering) findGroupIndex(order int) (idx int, exact bool) {
	idx = sort.Search(len(o.groups), func(i int) bool { return o.groups[i].order >= order })
	exact = idx < len(o.groups) && o.groups[idx].order == order
	return idx, exact
}

func (o *ordering) insert(h *Hook) {
	idx, exact := o.findGroupIndex(h.Order)
	if exact {
		o.groups[idx].hooks = append(o.groups[idx].hooks, h)
		return
	}
	g := &group{order: h.Order, hooks: []*Hook{h}}
	o.groups = append(o.groups, nil)
	copy(o.groups[idx+1:], o.groups[idx:])
	o.groups[idx] = g
}

func (o *ordering) remove(h *Hook) {
	for gi, g := range o.groups {
		for i, cand := range g.hooks {
			if cand == h {
				g.hooks = append(g.hooks[:i], g.hooks[i+1:]...)
				if len(g.hooks) == 0 {
					o.groups = append(o.groups[:gi], o.groups[gi+1:]...)
				}
				return
			}
		}
	}
}

// Registry is the ordered, multi-tenant hook store for one Dispatch
// instance. It is not safe for concurrent use by design (see the
// specification's single-threaded cooperative model); the one exception
// is the timer goroutines it spawns for Options.Timeout, which only ever
// touch the registry through Unregister.
type Registry struct {
	mu         sync.Mutex
	resolver   Resolver
	wildcard   ordering
	byOpcode   map[Opcode]*ordering
	byHandle   map[uint64]*Hook
	byHandleOp map[uint64]Opcode
	timers     map[uint64]*time.Timer
	nextID     uint64
}

// New creates a Registry bound to a Resolver (normally backed by the
// active Codec Registry).
func New(resolver Resolver) *Registry {
	return &Registry{
		resolver:   resolver,
		byOpcode:   make(map[Opcode]*ordering),
		byHandle:   make(map[uint64]*Hook),
		byHandleOp: make(map[uint64]Opcode),
		timers:     make(map[uint64]*time.Timer),
	}
}

// Register validates and inserts a structured or raw hook. nameOrOpcode
// may be a message name (resolved through the Resolver) or, if wildcard
// is true, is ignored entirely.
func (r *Registry) Register(namespace string, wildcard bool, nameOrOpcode string, defVersion DefVersion, opts Options, cb Callback, rawCb RawCallback) (Handle, error) {
	if err := validateDefVersion(wildcard, defVersion); err != nil {
		return Handle{}, err
	}

	var (
		opcode Opcode
		msgName string
	)
	if wildcard {
		opcode = Wildcard
	} else {
		msgName = nameOrOpcode
		resolved, ok := r.resolver.OpcodeForName(msgName)
		if !ok {
			return Handle{}, errors.Wrapf(ErrUnmappedName, "message name %q not mapped", msgName)
		}
		opcode = resolved
		if defVersion.IsNumbered() {
			latest, hasLatest := r.resolver.LatestDefVersion(msgName)
			switch {
			case hasLatest && defVersion.Number() < latest:
				return Handle{}, errors.Wrapf(ErrObsoleteDefinition, "definition %d for %q (latest %d)", defVersion.Number(), msgName, latest)
			case hasLatest && defVersion.Number() > latest:
				return Handle{}, errors.Wrapf(ErrUnknownDefinition, "definition %d for %q (latest %d)", defVersion.Number(), msgName, latest)
			case !hasLatest && !r.resolver.HasDefVersion(msgName, defVersion.Number()):
				return Handle{}, errors.Wrapf(ErrUnknownDefinition, "definition %d for %q", defVersion.Number(), msgName)
			}
		}
	}

	filter := DefaultFilter()
	if opts.Filter != nil {
		filter = *opts.Filter
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	h := &Hook{
		handle:      Handle{id: id},
		Namespace:   namespace,
		Opcode:      opcode,
		MessageName: msgName,
		DefVersion:  defVersion,
		Filter:      filter,
		Order:       opts.Order,
		Callback:    cb,
		RawCallback: rawCb,
	}

	target := r.orderingFor(opcode)
	target.insert(h)
	r.byHandle[id] = h
	r.byHandleOp[id] = opcode
	r.mu.Unlock()

	if opts.Timeout != nil {
		r.armTimeout(h, opts.Timeout.Duration)
	}
	return h.handle, nil
}

func (r *Registry) orderingFor(opcode Opcode) *ordering {
	if opcode == Wildcard {
		return &r.wildcard
	}
	o, ok := r.byOpcode[opcode]
	if !ok {
		o = &ordering{}
		r.byOpcode[opcode] = o
	}
	return o
}

func validateDefVersion(wildcard bool, d DefVersion) error {
	if wildcard && d.IsNumbered() {
		return ErrWildcardNeedsRawOrAny
	}
	if !d.IsNumbered() && !d.IsAny() && !d.IsRaw() {
		return ErrInvalidDefVersion
	}
	return nil
}

func (r *Registry) armTimeout(h *Hook, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fired atomic.Bool
	t := time.AfterFunc(d, func() {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		r.Unregister(h.handle)
		if h.Callback != nil {
			h.Callback(nil, false)
		} else if h.RawCallback != nil {
			h.RawCallback(h.Opcode, nil, false, false)
		}
	})
	r.timers[h.handle.id] = t
}

// Unregister removes a hook. It is idempotent and safe to call from
// within a callback that is itself currently running.
func (r *Registry) Unregister(handle Handle) {
	r.mu.Lock()
	h, ok := r.byHandle[handle.id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byHandle, handle.id)
	opcode := r.byHandleOp[handle.id]
	delete(r.byHandleOp, handle.id)
	if t, ok := r.timers[handle.id]; ok {
		t.Stop()
		delete(r.timers, handle.id)
	}
	target := r.orderingForLocked(opcode)
	target.remove(h)
	r.mu.Unlock()
}

func (r *Registry) orderingForLocked(opcode Opcode) *ordering {
	if opcode == Wildcard {
		return &r.wildcard
	}
	o, ok := r.byOpcode[opcode]
	if !ok {
		o = &ordering{}
		r.byOpcode[opcode] = o
	}
	return o
}

// UnregisterNamespace removes every hook owned by namespace and returns
// how many were removed. Used by the Module Host on unload.
func (r *Registry) UnregisterNamespace(namespace string) int {
	r.mu.Lock()
	var toRemove []Handle
	for id, h := range r.byHandle {
		if h.Namespace == namespace {
			toRemove = append(toRemove, Handle{id: id})
		}
	}
	r.mu.Unlock()
	for _, handle := range toRemove {
		r.Unregister(handle)
	}
	return len(toRemove)
}

// IterateForCode returns the deterministic dispatch order for an opcode:
// a stable merge of the wildcard ordering and the opcode's own ordering,
// ascending by group order, wildcard winning ties.
func (r *Registry) IterateForCode(opcode Opcode) []*Hook {
	r.mu.Lock()
	defer r.mu.Unlock()

	wc := r.wildcard.groups
	var own []*group
	if o, ok := r.byOpcode[opcode]; ok {
		own = o.groups
	}

	var out []*Hook
	i, j := 0, 0
	for i < len(wc) || j < len(own) {
		switch {
		case i >= len(wc):
			out = append(out, own[j].hooks...)
			j++
		case j >= len(own):
			out = append(out, wc[i].hooks...)
			i++
		case wc[i].order <= own[j].order:
			out = append(out, wc[i].hooks...)
			i++
		default:
			out = append(out, own[j].hooks...)
			j++
		}
	}
	return out
}

// Clear removes every hook regardless of namespace and stops any armed
// timeout timers. Used by Dispatch.Reset.
func (r *Registry) Clear() {
	r.mu.Lock()
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = make(map[uint64]*time.Timer)
	r.byHandle = make(map[uint64]*Hook)
	r.byHandleOp = make(map[uint64]Opcode)
	r.wildcard = ordering{}
	r.byOpcode = make(map[Opcode]*ordering)
	r.mu.Unlock()
}

// HasAny reports whether there is at least one hook that could run for
// opcode (wildcard or opcode-specific).
func (r *Registry) HasAny(opcode Opcode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.wildcard.groups) > 0 {
		return true
	}
	o, ok := r.byOpcode[opcode]
	return ok && len(o.groups) > 0
}
