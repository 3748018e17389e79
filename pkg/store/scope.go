package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"golang.org/x/sync/singleflight"
)

// ScopeID indexes a scope inside its Arena.
type ScopeID int

// NoParent is the parent index of root scopes.
const NoParent ScopeID = -1

// Closer releases the resource held by a stored value.
type Closer func(value any) error

// CloseValue closes values implementing io.Closer and ignores everything else.
func CloseValue(value any) error {
	if c, ok := value.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type entryKey struct {
	ns  Namespace
	key any
}

type registeredCloser struct {
	key   entryKey
	value any
	fn    Closer
}

// slot is the arena-owned state of one scope.
type slot struct {
	label  string
	parent ScopeID

	mu       sync.Mutex
	entries  map[entryKey]any
	closers  []registeredCloser
	closed   bool
	inflight sync.WaitGroup
	group    singleflight.Group
	flights  map[entryKey]string // singleflight key per entry with a computation running
	nflights uint64
}

// Arena owns every scope opened during one run.
// It is safe for concurrent use.
type Arena struct {
	mu     sync.RWMutex
	slots  []*slot
	logger *slog.Logger
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger used to report closer failures.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arena) {
		a.logger = logger
	}
}

// NewArena creates an empty arena.
func NewArena(opts ...Option) *Arena {
	a := &Arena{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root opens a scope without a parent.
func (a *Arena) Root(label string) *Scope {
	return a.open(label, NoParent)
}

// Scope returns the handle of an existing scope.
func (a *Arena) Scope(id ScopeID) (*Scope, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id < 0 || int(id) >= len(a.slots) {
		return nil, false
	}
	return &Scope{arena: a, id: id}, true
}

// Len returns the number of scopes ever opened in the arena.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.slots)
}

// Open returns the number of scopes not closed yet.
func (a *Arena) Open() int {
	a.mu.RLock()
	slots := append([]*slot(nil), a.slots...)
	a.mu.RUnlock()

	open := 0
	for _, s := range slots {
		s.mu.Lock()
		if !s.closed {
			open++
		}
		s.mu.Unlock()
	}
	return open
}

// CloseAll closes every scope still open, most recently opened first, so that children
// close before their parents. Failures of all scopes are joined.
func (a *Arena) CloseAll() error {
	var errs []error
	for id := ScopeID(a.Len() - 1); id >= 0; id-- {
		s := &Scope{arena: a, id: id}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// open publishes a fully initialised slot; readers can only reach it once its parent
// index is set.
func (a *Arena) open(label string, parent ScopeID) *Scope {
	sl := &slot{
		label:   label,
		parent:  parent,
		entries: make(map[entryKey]any),
	}

	a.mu.Lock()
	a.slots = append(a.slots, sl)
	id := ScopeID(len(a.slots) - 1)
	a.mu.Unlock()

	return &Scope{arena: a, id: id}
}

func (a *Arena) slot(id ScopeID) *slot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.slots[id]
}

// Scope is a handle to one scope of an Arena.
type Scope struct {
	arena *Arena
	id    ScopeID
}

// PutOption configures a Put or GetOrCompute.
type PutOption func(*putOptions)

type putOptions struct {
	closer         Closer
	allowOverwrite bool
}

// WithCloser registers fn to release the value when the scope closes.
func WithCloser(fn Closer) PutOption {
	return func(o *putOptions) {
		o.closer = fn
	}
}

// AllowOverwrite lets Put replace an existing local value. The closer of the replaced
// value stays registered.
func AllowOverwrite() PutOption {
	return func(o *putOptions) {
		o.allowOverwrite = true
	}
}

// ID returns the arena index of the scope.
func (s *Scope) ID() ScopeID { return s.id }

// Arena returns the arena owning the scope.
func (s *Scope) Arena() *Arena { return s.arena }

// Label returns the name given when the scope was opened.
func (s *Scope) Label() string { return s.slot().label }

func (s *Scope) String() string { return s.Label() }

// Parent returns the parent scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	parent := s.slot().parent
	if parent == NoParent {
		return nil
	}
	return &Scope{arena: s.arena, id: parent}
}

// Root returns the top-most ancestor (s itself for a root).
func (s *Scope) Root() *Scope {
	cur := s
	for p := cur.Parent(); p != nil; p = cur.Parent() {
		cur = p
	}
	return cur
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	sl := s.slot()
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.closed
}

// Child opens a new scope whose reads fall back to s.
func (s *Scope) Child(label string) (*Scope, error) {
	sl := s.slot()
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed {
		return nil, &domain.ConfigurationError{
			Code:    domain.CodeStoreClosed,
			Subject: fmt.Sprintf("scope %q", sl.label),
			Reason:  "cannot open a child scope of a closed scope",
		}
	}
	return s.arena.open(label, s.id), nil
}

// Get looks the key up locally, then in each ancestor. The first match wins. Closed
// scopes hold no values.
func (s *Scope) Get(ns Namespace, key any) (any, bool) {
	if !validKey(key) {
		return nil, false
	}
	k := entryKey{ns: ns, key: key}

	for id := s.id; id != NoParent; {
		sl := s.arena.slot(id)
		sl.mu.Lock()
		v, ok := sl.entries[k]
		sl.mu.Unlock()
		if ok {
			return v, true
		}
		id = sl.parent
	}
	return nil, false
}

// GetLocal looks the key up in s only.
func (s *Scope) GetLocal(ns Namespace, key any) (any, bool) {
	if !validKey(key) {
		return nil, false
	}
	sl := s.slot()
	sl.mu.Lock()
	defer sl.mu.Unlock()
	v, ok := sl.entries[entryKey{ns: ns, key: key}]
	return v, ok
}

// Put stores a value in s. Storing a key that already exists locally is a configuration
// error unless AllowOverwrite is given.
func (s *Scope) Put(ns Namespace, key, value any, opts ...PutOption) error {
	if err := s.checkKey(ns, key); err != nil {
		return err
	}
	o := collect(opts)
	k := entryKey{ns: ns, key: key}

	sl := s.slot()
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed {
		return s.closedError(ns, key)
	}
	if _, exists := sl.entries[k]; exists && !o.allowOverwrite {
		return &domain.ConfigurationError{
			Code:    domain.CodeKeyCollision,
			Subject: fmt.Sprintf("scope %q", sl.label),
			Reason:  fmt.Sprintf("key %v already exists in namespace %s", key, ns),
		}
	}
	sl.store(k, value, o.closer)
	return nil
}

// GetOrCompute returns the visible value for key, computing and storing it locally when
// absent. Concurrent callers for the same key share a single call to compute; failed
// computations are not stored.
func (s *Scope) GetOrCompute(ns Namespace, key any, compute func() (any, error), opts ...PutOption) (any, error) {
	if err := s.checkKey(ns, key); err != nil {
		return nil, err
	}
	if v, ok := s.Get(ns, key); ok {
		return v, nil
	}

	o := collect(opts)
	k := entryKey{ns: ns, key: key}
	sl := s.slot()

	sl.mu.Lock()
	if sl.closed {
		sl.mu.Unlock()
		return nil, s.closedError(ns, key)
	}
	sl.inflight.Add(1)
	flight := sl.flight(k)
	sl.mu.Unlock()
	defer sl.inflight.Done()

	v, err, _ := sl.group.Do(flight, func() (any, error) {
		sl.mu.Lock()
		existing, ok := sl.entries[k]
		sl.mu.Unlock()
		if ok {
			return existing, nil
		}
		defer sl.land(k, flight)

		v, err := compute()
		if err != nil {
			return nil, err
		}

		sl.mu.Lock()
		defer sl.mu.Unlock()
		if existing, ok := sl.entries[k]; ok {
			// A concurrent Put won the race.
			return existing, nil
		}
		sl.store(k, v, o.closer)
		return v, nil
	})
	return v, err
}

// Remove deletes a local value and returns it. A closer registered for the value still
// runs when the scope closes.
func (s *Scope) Remove(ns Namespace, key any) (any, bool) {
	if !validKey(key) {
		return nil, false
	}
	k := entryKey{ns: ns, key: key}

	sl := s.slot()
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed {
		return nil, false
	}
	v, ok := sl.entries[k]
	if ok {
		delete(sl.entries, k)
	}
	return v, ok
}

// Close runs every registered closer in reverse registration order. Only the first call
// does any work. Close waits for in-flight GetOrCompute calls on s and never touches
// ancestor scopes.
func (s *Scope) Close() error {
	sl := s.slot()

	sl.mu.Lock()
	if sl.closed {
		sl.mu.Unlock()
		return nil
	}
	sl.closed = true
	sl.mu.Unlock()

	sl.inflight.Wait()

	sl.mu.Lock()
	closers := sl.closers
	sl.closers = nil
	clear(sl.entries)
	sl.mu.Unlock()

	var failures []domain.CloseFailure
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := runCloser(c); err != nil {
			s.arena.logger.Error("closer failed",
				"scope", sl.label,
				"namespace", c.key.ns.String(),
				"key", fmt.Sprintf("%v", c.key.key),
				"err", err,
			)
			failures = append(failures, domain.CloseFailure{
				Namespace: c.key.ns.String(),
				Key:       c.key.key,
				Err:       err,
			})
		}
	}

	if len(failures) > 0 {
		return &domain.ResourceCloseError{
			Scope:    sl.label,
			Total:    len(closers),
			Failures: failures,
		}
	}
	return nil
}

func (s *Scope) slot() *slot {
	return s.arena.slot(s.id)
}

func (s *Scope) checkKey(ns Namespace, key any) error {
	if validKey(key) {
		return nil
	}
	return &domain.ConfigurationError{
		Code:    domain.CodeInvalidKey,
		Subject: fmt.Sprintf("scope %q", s.Label()),
		Reason:  fmt.Sprintf("key of type %T in namespace %s is not comparable", key, ns),
	}
}

func (s *Scope) closedError(ns Namespace, key any) error {
	return &domain.ConfigurationError{
		Code:    domain.CodeStoreClosed,
		Subject: fmt.Sprintf("scope %q", s.Label()),
		Reason:  fmt.Sprintf("cannot store key %v in namespace %s after close", key, ns),
	}
}

// store must be called with sl.mu held.
func (sl *slot) store(k entryKey, value any, closer Closer) {
	sl.entries[k] = value
	if closer != nil {
		sl.closers = append(sl.closers, registeredCloser{key: k, value: value, fn: closer})
	}
}

// flight returns the singleflight key of the computation for k, starting a new one when
// none is running. It must be called with sl.mu held.
func (sl *slot) flight(k entryKey) string {
	if f, ok := sl.flights[k]; ok {
		return f
	}
	if sl.flights == nil {
		sl.flights = make(map[entryKey]string)
	}
	sl.nflights++
	f := strconv.FormatUint(sl.nflights, 10)
	sl.flights[k] = f
	return f
}

// land forgets the computation of k once it is done.
func (sl *slot) land(k entryKey, flight string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.flights[k] == flight {
		delete(sl.flights, k)
	}
}

func runCloser(c registeredCloser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("closer panicked: %v", r)
		}
	}()
	return c.fn(c.value)
}

func collect(opts []PutOption) putOptions {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validKey(key any) bool {
	if key == nil {
		return true
	}
	return reflect.TypeOf(key).Comparable()
}
