package modulehost

import "github.com/wireghost/wireghost/hook"

// Wrapper is the namespaced façade a module sees instead of the raw
// Hook Registry and Dispatch Facade: every Hook call is stamped with
// the owning module's name so Unload can find and remove exactly its
// hooks, and nothing else's.
type Wrapper struct {
	namespace string
	host      *Host
}

// Namespace returns the module name this wrapper is bound to.
func (w *Wrapper) Namespace() string { return w.namespace }

// Hook registers a structured or raw hook under this module's namespace.
func (w *Wrapper) Hook(wildcard bool, nameOrOpcode string, defVersion hook.DefVersion, opts hook.Options, cb hook.Callback, rawCb hook.RawCallback) (hook.Handle, error) {
	return w.host.hooks.Register(w.namespace, wildcard, nameOrOpcode, defVersion, opts, cb, rawCb)
}

// Unhook removes a single previously-registered hook.
func (w *Wrapper) Unhook(handle hook.Handle) {
	w.host.hooks.Unregister(handle)
}

// Write synthesizes a frame the same way the Dispatch Facade's public
// Write does; modules never get direct access to the facade.
func (w *Wrapper) Write(outgoing bool, nameOrBytes any, version int, data any) (bool, error) {
	return w.host.writer.Write(outgoing, nameOrBytes, version, data)
}
