package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Typed errors below match them via errors.Is.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrParsing             = errors.New("parsing error")
	ErrParameterResolution = errors.New("parameter resolution error")
	ErrResourceClose       = errors.New("resource close error")
	ErrAborted             = errors.New("aborted")
)

// ErrIllegalTransition is returned when a lifecycle transition is not allowed.
var ErrIllegalTransition = errors.New("illegal state transition")

// ErrReportNotFound is returned when a run report cannot be found in the store.
var ErrReportNotFound = errors.New("report not found")

// Configuration error codes.
const (
	CodeKeyCollision          = "key-collision"
	CodeInvalidKey            = "invalid-key"
	CodeStoreClosed           = "store-closed"
	CodeUnknownExtension      = "unknown-extension"
	CodeDuplicateExtension    = "duplicate-extension"
	CodeInvalidExtension      = "invalid-extension"
	CodeConditionFailed       = "condition-failed"
	CodeCallbackFailed        = "callback-failed"
	CodeMissingProvider       = "missing-template-provider"
	CodeInvalidPattern        = "invalid-display-name-pattern"
	CodeConflictingDelimiter  = "conflicting-delimiter-config"
	CodeInvalidSource         = "invalid-source-config"
	CodeArgumentCountMismatch = "argument-count-mismatch"
	CodeUnsupportedMode       = "unsupported-validation-mode"
	CodeNoInvocations         = "no-invocations-produced"
)

// Parsing error codes.
const (
	CodeMalformedRow    = "malformed-row"
	CodeColumnTooLarge  = "column-too-large"
	CodeSourceReadError = "source-read-failed"
)

// Parameter resolution error codes.
const (
	CodeNoResolver     = "no-resolver-found"
	CodeAmbiguous      = "ambiguous-resolution"
	CodeTypeMismatch   = "type-mismatch"
	CodeResolverFailed = "resolver-failed"
)

// ConfigurationError reports an invalid setup. The affected node does not execute.
type ConfigurationError struct {
	Code    string
	Subject string // What was misconfigured (node, pattern, source, key)
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error [%s]", e.Code)
	if e.Subject != "" {
		msg += " in " + e.Subject
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ParsingError reports malformed input in an argument source.
type ParsingError struct {
	Code   string
	Source string
	Row    int // 1-based, 0 when not row specific
	Err    error
}

func (e *ParsingError) Error() string {
	msg := fmt.Sprintf("failed to parse CSV input configured via %s [%s]", e.Source, e.Code)
	if e.Row > 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParsingError) Is(target error) bool { return target == ErrParsing }

func (e *ParsingError) Unwrap() error { return e.Err }

// ParameterResolutionError reports a parameter that could not be bound.
// It is fatal for one invocation only.
type ParameterResolutionError struct {
	Code      string
	Parameter string
	Index     int
	Resolvers []string // Matching resolver IDs (ambiguity) or the resolver that failed
	Err       error
}

func (e *ParameterResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve parameter %q at index %d [%s]", e.Parameter, e.Index, e.Code)
	switch e.Code {
	case CodeAmbiguous:
		msg += fmt.Sprintf(": competing resolvers %s", strings.Join(e.Resolvers, ", "))
	case CodeNoResolver:
		msg += ": no registered resolver supports it"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParameterResolutionError) Is(target error) bool { return target == ErrParameterResolution }

func (e *ParameterResolutionError) Unwrap() error { return e.Err }

// CloseFailure identifies one closer that failed.
type CloseFailure struct {
	Namespace string
	Key       any
	Err       error
}

// ResourceCloseError aggregates every closer failure of one scope.
type ResourceCloseError struct {
	Scope    string
	Total    int
	Failures []CloseFailure
}

func (e *ResourceCloseError) Error() string {
	msg := fmt.Sprintf("closing scope %q: %d of %d resources failed to close", e.Scope, len(e.Failures), e.Total)
	for _, f := range e.Failures {
		msg += fmt.Sprintf("\n  - [%s] %v: %v", f.Namespace, f.Key, f.Err)
	}
	return msg
}

func (e *ResourceCloseError) Is(target error) bool { return target == ErrResourceClose }

// Unwrap exposes the individual failures.
func (e *ResourceCloseError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// AbortedError signals that a body gave up voluntarily (an unmet assumption).
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string { return "aborted: " + e.Reason }

func (e *AbortedError) Is(target error) bool { return target == ErrAborted }

// Abort returns an error that marks the current test or invocation as aborted.
func Abort(reason string) error {
	return &AbortedError{Reason: reason}
}
