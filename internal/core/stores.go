package core

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// APIClient is the subset of apiclient.Client the stores need. Defining it
// here lets tests substitute a fake remote API.
type APIClient interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// CredentialStore is the subset of storage.CredentialStore the auth store
// needs.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Option configures the ambient dependencies of a store.
type Option func(*deps)

type deps struct {
	events EventLogger
	logger *slog.Logger
	now    func() time.Time
}

// WithEventLogger records store activity in the given event log.
func WithEventLogger(e EventLogger) Option {
	return func(d *deps) {
		if e != nil {
			d.events = e
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

func newDeps(opts []Option) deps {
	d := deps{
		events: nopEventLogger{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// listenerSet holds change subscribers. Listeners run outside the owning
// store's lock, in registration order.
type listenerSet[T any] struct {
	mu  sync.Mutex
	fns []*listener[T]
}

type listener[T any] struct {
	fn func(T)
}

func (s *listenerSet[T]) add(fn func(T)) (unsubscribe func()) {
	l := &listener[T]{fn: fn}
	s.mu.Lock()
	s.fns = append(s.fns, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if i := slices.Index(s.fns, l); i >= 0 {
				s.fns = slices.Delete(slices.Clone(s.fns), i, i+1)
			}
		})
	}
}

func (s *listenerSet[T]) notify(v T) {
	s.mu.Lock()
	fns := s.fns
	s.mu.Unlock()
	for _, l := range fns {
		l.fn(v)
	}
}

func (s *listenerSet[T]) clear() {
	s.mu.Lock()
	s.fns = nil
	s.mu.Unlock()
}
