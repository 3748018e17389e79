// Package extension defines the plugin surface of the engine: extensions, their
// capabilities, and the context handed to them.
package extension

import (
	"context"
	"errors"
	"strings"
)

// Capability flags what an extension can do. Flags are derived from the non-nil
// capability fields of an Extension.
type Capability uint8

const (
	CapabilityCondition Capability = 1 << iota
	CapabilityParameterResolver
	CapabilityTemplateProvider
	CapabilityLifecycleCallback
)

// Has reports whether every flag of other is set in c.
func (c Capability) Has(other Capability) bool {
	return c&other == other && other != 0
}

func (c Capability) String() string {
	var names []string
	if c.Has(CapabilityCondition) {
		names = append(names, "condition")
	}
	if c.Has(CapabilityParameterResolver) {
		names = append(names, "parameter-resolver")
	}
	if c.Has(CapabilityTemplateProvider) {
		names = append(names, "template-provider")
	}
	if c.Has(CapabilityLifecycleCallback) {
		names = append(names, "lifecycle-callback")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Extension is one registered plugin. Each capability is a separate, optional field.
type Extension struct {
	ID string

	Condition         Condition
	ParameterResolver ParameterResolver
	TemplateProvider  TemplateProvider
	Callback          LifecycleCallback
}

// Capabilities returns the flags of every capability the extension carries.
func (e Extension) Capabilities() Capability {
	var c Capability
	if e.Condition != nil {
		c |= CapabilityCondition
	}
	if e.ParameterResolver != nil {
		c |= CapabilityParameterResolver
	}
	if e.TemplateProvider != nil {
		c |= CapabilityTemplateProvider
	}
	if e.Callback != nil {
		c |= CapabilityLifecycleCallback
	}
	return c
}

// ConditionResult is the verdict of a Condition.
type ConditionResult struct {
	Enabled bool
	Reason  string
}

// Enabled returns an enabling result.
func Enabled(reason string) ConditionResult {
	return ConditionResult{Enabled: true, Reason: reason}
}

// Disabled returns a disabling result.
func Disabled(reason string) ConditionResult {
	return ConditionResult{Enabled: false, Reason: reason}
}

// Condition decides whether a node runs. Errors are fatal for the node.
type Condition interface {
	Evaluate(ctx context.Context, ec *Context) (ConditionResult, error)
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context, ec *Context) (ConditionResult, error)

func (f ConditionFunc) Evaluate(ctx context.Context, ec *Context) (ConditionResult, error) {
	return f(ctx, ec)
}

// ParameterResolver supplies values for formal parameters.
type ParameterResolver interface {
	Supports(pc ParameterContext, ec *Context) (bool, error)
	Resolve(ctx context.Context, pc ParameterContext, ec *Context) (any, error)
}

// TemplateProvider expands a template node into a stream of invocations.
type TemplateProvider interface {
	Supports(ec *Context) bool
	Provide(ctx context.Context, ec *Context) (InvocationStream, error)
}

// LifecycleCallback runs around nodes and invocations. After is called for every
// callback whose Before was called, in reverse order, whatever the outcome.
type LifecycleCallback interface {
	Before(ctx context.Context, ec *Context) error
	After(ctx context.Context, ec *Context) error
}

// ErrStreamDone is returned by InvocationStream.Next once the stream is exhausted.
var ErrStreamDone = errors.New("invocation stream exhausted")

// InvocationStream is a lazy, pull-based sequence of invocations.
//
// Next returns ErrStreamDone at the end, an *InvocationError for an element that failed
// without ending the stream, and any other error for a failure that ends it.
// Close releases the underlying sources and reports stream-level failures; it is
// idempotent.
type InvocationStream interface {
	Next(ctx context.Context) (*Invocation, error)
	Close() error
}

// InvocationError is a failure of one element of a stream. Consumers record it and keep
// pulling.
type InvocationError struct {
	Index       int
	DisplayName string
	Err         error
}

func (e *InvocationError) Error() string {
	return e.Err.Error()
}

func (e *InvocationError) Unwrap() error { return e.Err }
