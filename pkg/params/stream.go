package params

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/store"
)

var argumentsNamespace = store.NewNamespace("arbor", "params", "arguments")

// Stream is the lazy invocation sequence of one template. It is not safe for
// concurrent use; the engine pulls invocations one at a time.
type Stream struct {
	ec        *extension.Context
	formatter *Formatter
	mode      ValidationMode
	expected  int
	autoClose bool
	allowZero bool

	next func() (domain.ArgumentSet, error, bool)
	stop func()

	produced  int
	exhausted bool

	closeOnce sync.Once
}

type streamConfig struct {
	formatter *Formatter
	mode      ValidationMode
	autoClose bool
	allowZero bool
}

func newStream(ctx context.Context, ec *extension.Context, sources []ArgumentSource, cfg streamConfig) *Stream {
	next, stop := iter.Pull2(concat(ctx, ec, sources))
	return &Stream{
		ec:        ec,
		formatter: cfg.formatter,
		mode:      cfg.mode,
		expected:  len(ec.Node.ArgumentParameters()),
		autoClose: cfg.autoClose,
		allowZero: cfg.allowZero,
		next:      next,
		stop:      stop,
	}
}

// Produced returns the number of argument sets pulled so far.
func (s *Stream) Produced() int { return s.produced }

// Next pulls the following argument set and turns it into an invocation.
//
// An argument set that fails validation yields an *extension.InvocationError and the
// stream can be pulled again. Source errors end the stream.
func (s *Stream) Next(ctx context.Context) (*extension.Invocation, error) {
	if s.exhausted {
		return nil, extension.ErrStreamDone
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set, err, ok := s.next()
	if !ok {
		s.exhausted = true
		return nil, extension.ErrStreamDone
	}
	if err != nil {
		return nil, err
	}

	s.produced++
	index := s.produced
	node := s.ec.Node
	name := s.formatter.Format(index, node.Name(), set)

	if err := s.validate(set); err != nil {
		return nil, &extension.InvocationError{Index: index, DisplayName: name, Err: err}
	}

	scope, err := s.ec.Scope.Child(fmt.Sprintf("%s[%d]", node.ID, index))
	if err != nil {
		return nil, err
	}
	if s.autoClose {
		if err := closeWithScope(scope, set.Values); err != nil {
			return nil, err
		}
	}

	return &extension.Invocation{
		Template:    node,
		Index:       index,
		DisplayName: name,
		Arguments:   set,
		Scope:       scope,
		Extensions:  []extension.Extension{ArgumentResolver()},
	}, nil
}

func (s *Stream) validate(set domain.ArgumentSet) error {
	if s.mode != ModeStrict || set.Len() == s.expected {
		return nil
	}
	return &domain.ConfigurationError{
		Code:    domain.CodeArgumentCountMismatch,
		Subject: fmt.Sprintf("template %q", s.ec.Node.ID),
		Reason: fmt.Sprintf("%d parameters declared but %d arguments provided: %v",
			s.expected, set.Len(), set.Values),
	}
}

// Close stops the sources. Once the sources were exhausted without producing anything,
// Close fails unless the template allows zero invocations. Only the first call does
// any work.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stop()
		if s.exhausted && s.produced == 0 && !s.allowZero {
			err = &domain.ConfigurationError{
				Code:    domain.CodeNoInvocations,
				Subject: fmt.Sprintf("template %q", s.ec.Node.ID),
				Reason:  "configured argument sources produced no argument sets, at least one is required",
			}
		}
	})
	return err
}

// closeWithScope registers every io.Closer argument with the invocation scope. On failure
// the scope is closed at once, releasing the arguments registered so far.
func closeWithScope(scope *store.Scope, values []any) error {
	for i, v := range values {
		if _, ok := v.(io.Closer); !ok {
			continue
		}
		if err := scope.Put(argumentsNamespace, i, v, store.WithCloser(store.CloseValue)); err != nil {
			return errors.Join(err, scope.Close())
		}
	}
	return nil
}
