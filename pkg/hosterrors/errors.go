// Package hosterrors defines the plugin host's error taxonomy (spec §7).
//
// Each Kind is a category, not a specific message; callers distinguish
// failures with errors.Is/errors.As instead of matching strings, the same
// way the rest of the module wraps errors with fmt.Errorf("...: %w", err).
package hosterrors

import "fmt"

// Kind is one of the error categories named in spec §7.
type Kind string

const (
	KindIntegrity          Kind = "integrity"
	KindStaticAnalysis     Kind = "static-analysis"
	KindInitialization     Kind = "initialization"
	KindInvocation         Kind = "invocation"
	KindProtocol           Kind = "protocol"
	KindResource           Kind = "resource"
	KindServiceRegistration Kind = "service-registration"
	KindStore              Kind = "store"
)

// Error wraps an underlying cause with a taxonomy Kind and the plugin it
// concerns, if any.
type Error struct {
	Kind       Kind
	PluginName string
	Op         string
	Err        error
}

func (e *Error) Error() string {
	if e.PluginName != "" {
		return fmt.Sprintf("%s: %s[%s]: %v", e.Op, e.Kind, e.PluginName, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error for op performed on plugin (plugin may be
// empty for batch-level failures).
func New(kind Kind, plugin, op string, err error) *Error {
	return &Error{Kind: kind, PluginName: plugin, Op: op, Err: err}
}

// AsKind returns the Kind of the first *Error found in err's wrap chain,
// and false when the chain holds none. Kind itself is not an error, so this
// is the way to match on a category.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// as walks err's single-Unwrap chain looking for an *Error, a local
// stand-in for errors.As so this file needs no import beyond fmt.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
