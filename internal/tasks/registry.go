// Package tasks is the host background-task scheduler. It plays the part of
// the platform's task manager: task bodies are defined by name, periodic
// registrations are idempotent by name, and every invocation runs in its own
// goroutine under an execution budget.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotDefined  = errors.New("tasks: task is not defined")
	ErrUnavailable = errors.New("tasks: background execution is unavailable")
	ErrClosed      = errors.New("tasks: registry is closed")
)

// Result is what an invocation hands back to the scheduler
type Result int

const (
	ResultSuccess Result = iota
	ResultNoData
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultNoData:
		return "no_data"
	default:
		return "failed"
	}
}

// Status mirrors the platform's background execution availability
type Status string

const (
	StatusAvailable  Status = "available"
	StatusRestricted Status = "restricted"
	StatusDenied     Status = "denied"
)

// Invocation is the input of one task execution
type Invocation struct {
	ID        string
	TaskName  string
	Data      interface{}
	Err       error
	StartedAt time.Time
}

// Handler is a task body
type Handler func(ctx context.Context, inv Invocation) Result

// Options for a periodic registration
type Options struct {
	// MinInterval is a lower bound; the scheduler never runs the task more often
	MinInterval time.Duration
}

type registration struct {
	options Options
	cancel  context.CancelFunc
	done    chan struct{}
}

// Registry holds task definitions and periodic registrations
type Registry struct {
	handlers      map[string]Handler
	registrations map[string]*registration
	expiration    []func(name string)
	status        Status
	budget        time.Duration
	closed        bool
	mu            sync.RWMutex
}

// NewRegistry creates a registry whose invocations are limited to budget
func NewRegistry(budget time.Duration) *Registry {
	return &Registry{
		handlers:      make(map[string]Handler),
		registrations: make(map[string]*registration),
		status:        StatusAvailable,
		budget:        budget,
	}
}

// Define sets the body of a named task. Redefining replaces the body.
func (r *Registry) Define(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// IsDefined reports whether a body exists for name
func (r *Registry) IsDefined(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Registry) SetStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

// OnExpiration adds a listener fired when an invocation overruns its budget
func (r *Registry) OnExpiration(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiration = append(r.expiration, fn)
}

// Register schedules name to run every opts.MinInterval. Registering a name
// that is already registered is a no-op and keeps the original interval.
func (r *Registry) Register(name string, opts Options) error {
	if opts.MinInterval <= 0 {
		return fmt.Errorf("tasks: invalid interval %s for %s", opts.MinInterval, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.status != StatusAvailable {
		return fmt.Errorf("%w (%s)", ErrUnavailable, r.status)
	}
	if _, ok := r.handlers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotDefined, name)
	}
	if _, ok := r.registrations[name]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := &registration{
		options: opts,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.registrations[name] = reg
	go r.loop(ctx, name, reg)

	log.Printf("✅ [TASKS] Registered %s (every %s)", name, opts.MinInterval)
	return nil
}

// Unregister stops future periodic invocations of name. An invocation already
// running is not interrupted.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	reg, ok := r.registrations[name]
	delete(r.registrations, name)
	r.mu.Unlock()

	if !ok {
		return
	}
	reg.cancel()
	<-reg.done
	log.Printf("🔴 [TASKS] Unregistered %s", name)
}

// IsRegistered reports whether name has a periodic registration
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registrations[name]
	return ok
}

// Registrations returns the registered task names, sorted
func (r *Registry) Registrations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.registrations))
	for name := range r.registrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs one invocation of name and returns its result. A panicking body
// yields ResultFailed. When the body outlives the budget the expiration
// listeners fire, its context is cancelled and ResultFailed is returned
// without waiting for it.
func (r *Registry) Invoke(ctx context.Context, name string, data interface{}, invErr error) Result {
	r.mu.RLock()
	h, ok := r.handlers[name]
	budget := r.budget
	r.mu.RUnlock()

	if !ok {
		log.Printf("❌ [TASKS] Invoke of undefined task %s", name)
		return ResultFailed
	}

	inv := Invocation{
		ID:        uuid.NewString(),
		TaskName:  name,
		Data:      data,
		Err:       invErr,
		StartedAt: time.Now(),
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if budget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, budget)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("❌ [TASKS] %s (%s) panicked: %v", name, inv.ID, p)
				resultCh <- ResultFailed
			}
		}()
		resultCh <- h(runCtx, inv)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-runCtx.Done():
		// A body that returns exactly at the deadline still counts
		select {
		case res := <-resultCh:
			return res
		default:
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			log.Printf("⚠️  [TASKS] %s (%s) exceeded its %s budget", name, inv.ID, budget)
			r.fireExpiration(name)
		}
		return ResultFailed
	}
}

// Close stops every periodic registration
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	regs := r.registrations
	r.registrations = make(map[string]*registration)
	r.mu.Unlock()

	for _, reg := range regs {
		reg.cancel()
		<-reg.done
	}
}

func (r *Registry) loop(ctx context.Context, name string, reg *registration) {
	defer close(reg.done)

	ticker := time.NewTicker(reg.options.MinInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Runs are serialized per registration; a slow run delays the next tick
			res := r.Invoke(context.Background(), name, nil, nil)
			if res == ResultFailed {
				log.Printf("⚠️  [TASKS] Periodic run of %s failed", name)
			}
		}
	}
}

func (r *Registry) fireExpiration(name string) {
	r.mu.RLock()
	listeners := append([]func(string){}, r.expiration...)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(name)
	}
}
