// Package modulehost implements the Module Host: it instantiates
// extension modules, gives each a namespaced façade onto the Hook
// Registry and Dispatch Facade, and tears down all of a module's hooks
// on unload.
package modulehost

import (
	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/hook"
)

// ErrUnknownModuleName is returned by Load when loader cannot resolve name.
var ErrUnknownModuleName = errors.New("modulehost: loader has no constructor for this name")

// HookRegistrar is the slice of hook.Registry the host needs.
type HookRegistrar interface {
	Register(namespace string, wildcard bool, nameOrOpcode string, defVersion hook.DefVersion, opts hook.Options, cb hook.Callback, rawCb hook.RawCallback) (hook.Handle, error)
	Unregister(handle hook.Handle)
	UnregisterNamespace(namespace string) int
}

// Writer is the slice of the Dispatch Facade a module needs to
// synthesize frames.
type Writer interface {
	Write(outgoing bool, nameOrBytes any, version int, data any) (bool, error)
}

// Constructor builds a module instance bound to wrapper. Returning a
// non-nil error aborts the load; any hooks already registered by the
// partially-constructed module are rolled back by the caller.
type Constructor func(wrapper *Wrapper, args ...any) (any, error)

// Loader resolves a module name to its Constructor. Discovering
// constructors from disk, plugins, or a build-time registry is outside
// this package's concern; Loader is just the seam.
type Loader interface {
	Resolve(name string) (Constructor, bool)
}

// Destructor is implemented by modules that need cleanup on Unload.
type Destructor interface {
	Destructor()
}

// Logger receives diagnostics the host would otherwise swallow, such as
// a panicking destructor.
type Logger func(msg string, err error, fields map[string]any)

// Host owns the module-name → instance map. The map is backed by a
// concurrent map (as the specification's concurrency model allows). A
// Host is bound to one Dispatch instance's hook registry and writer;
// nothing about the Hook Registry or Handler Pipeline is made
// concurrent by this choice.
type Host struct {
	hooks   HookRegistrar
	writer  Writer
	modules cmap.ConcurrentMap
	log     Logger
}

// New builds a Host bound to a Dispatch instance's hook registry and
// writer entry point.
func New(hooks HookRegistrar, writer Writer, log Logger) *Host {
	if log == nil {
		log = func(string, error, map[string]any) {}
	}
	return &Host{hooks: hooks, writer: writer, modules: cmap.New(), log: log}
}

// Load instantiates name via loader, unless it is already loaded (in
// which case the existing instance is returned). On any construction
// failure, every hook the module registered before failing is removed.
func (h *Host) Load(name string, loader Loader, args ...any) (any, error) {
	if existing, ok := h.modules.Get(name); ok {
		return existing, nil
	}

	ctor, ok := loader.Resolve(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModuleName, "module %q", name)
	}

	wrapper := &Wrapper{namespace: name, host: h}
	instance, err := ctor(wrapper, args...)
	if err != nil {
		removed := h.hooks.UnregisterNamespace(name)
		h.log("module load failed, rolled back hooks", err, map[string]any{
			"module": name, "hooksRemoved": removed,
		})
		return nil, errors.Wrapf(err, "modulehost: load %q", name)
	}

	h.modules.Set(name, instance)
	return instance, nil
}

// Unload removes every hook owned by name, invokes its Destructor if
// it has one (a panic from the destructor is logged, not propagated),
// and removes it from the module registry. Returns false
// if no such module is loaded.
func (h *Host) Unload(name string) bool {
	instance, ok := h.modules.Get(name)
	if !ok {
		return false
	}

	removed := h.hooks.UnregisterNamespace(name)
	h.log("module unloaded", nil, map[string]any{"module": name, "hooksRemoved": removed})

	if d, ok := instance.(Destructor); ok {
		h.runDestructor(name, d)
	}
	h.modules.Remove(name)
	return true
}

func (h *Host) runDestructor(name string, d Destructor) {
	defer func() {
		if r := recover(); r != nil {
			h.log("module destructor panicked", errors.Errorf("%v", r), map[string]any{"module": name})
		}
	}()
	d.Destructor()
}

// UnloadAll unloads every currently loaded module. Used by the
// Dispatch Facade's Reset.
func (h *Host) UnloadAll() {
	for _, name := range h.modules.Keys() {
		h.Unload(name)
	}
}

// Loaded reports whether name currently has a live instance.
func (h *Host) Loaded(name string) bool {
	return h.modules.Has(name)
}
