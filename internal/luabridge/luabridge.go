// Package luabridge defines the boundary between the control-domain event
// dispatcher (core.C8) and the embedded Lua VM. The VM interface is the
// contract spec.md §1 calls out as "out of scope": core packages depend
// only on VM, never on a concrete Lua implementation.
package luabridge

// VM is the minimal surface the event dispatcher needs: running arbitrary
// source, invoking named global callbacks with positional float/string
// args, and reporting the two distinguishable error kinds spec §7 names.
type VM interface {
	// DoString compiles and runs src in the VM's global environment.
	// Returns a *LoadError for a syntax error, a *RuntimeError for a
	// runtime error, or nil on success.
	DoString(src string) error

	// CallGlobal invokes a global function by name with the given args,
	// if it is defined; a missing function is not an error. Returns a
	// *RuntimeError if the call itself fails.
	CallGlobal(name string, args ...any) error

	// Reset reinitializes the VM's global environment (used by end-
	// upload's full reset and by flash-clear/load-default).
	Reset()
}

// LoadError wraps a Lua syntax/compile error (spec §7 "lua load error:").
type LoadError struct{ Err error }

func (e *LoadError) Error() string { return "lua load error: " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// RuntimeError wraps a Lua runtime error (spec §7 "lua runtime error:").
type RuntimeError struct{ Err error }

func (e *RuntimeError) Error() string { return "lua runtime error: " + e.Err.Error() }
func (e *RuntimeError) Unwrap() error { return e.Err }
