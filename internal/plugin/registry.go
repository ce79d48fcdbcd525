package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrRejected is returned when a before hook returns a nil input.
var ErrRejected = errors.New("operation rejected")

// Registry collects operation hooks during initialization and resolves
// them into per-field chains while the schema is built.
type Registry struct {
	mu      sync.Mutex
	sources []source
	log     *zap.Logger
	calls   *prometheus.CounterVec
}

type source struct {
	name string
	fn   OperationHookFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for build-time diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMetrics counts callback invocations per field and phase.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		calls := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgraph",
			Name:      "operation_hook_calls_total",
			Help:      "Operation hook callbacks invoked, by field and phase.",
		}, []string{"field", "phase"})
		if err := reg.Register(calls); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				calls = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				r.log.Warn("operation hook metrics disabled", zap.Error(err))
				return
			}
		}
		r.calls = calls
	}
}

// NewRegistry returns an empty registry configured by opts.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddOperationHook registers fn under name. fn is consulted once per root
// field when the schema is built.
func (r *Registry) AddOperationHook(name string, fn OperationHookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source{name: name, fn: fn})
}

// Use initializes each plugin against the registry.
func (r *Registry) Use(plugins ...Plugin) error {
	for _, p := range plugins {
		if err := p.Init(r); err != nil {
			return errors.Wrapf(err, "init plugin %s", p.Name())
		}
		r.log.Debug("plugin loaded", zap.String("plugin", p.Name()))
	}
	return nil
}

// Resolve asks every registered hook function about d and merges the
// matching hook sets into a chain ordered by ascending priority. Hooks with
// equal priority keep registration order.
func (r *Registry) Resolve(d Descriptor) (*Chain, error) {
	r.mu.Lock()
	sources := append([]source(nil), r.sources...)
	r.mu.Unlock()

	c := &Chain{field: d.FieldName, calls: r.calls}
	for _, src := range sources {
		hooks := src.fn(d)
		if hooks == nil {
			continue
		}
		for _, h := range hooks.Before {
			if err := checkPriority(src.name, d, h.Priority); err != nil {
				return nil, err
			}
			c.before = append(c.before, entry[BeforeFunc]{Hook: h, source: src.name})
		}
		for _, h := range hooks.After {
			if err := checkPriority(src.name, d, h.Priority); err != nil {
				return nil, err
			}
			c.after = append(c.after, entry[AfterFunc]{Hook: h, source: src.name})
		}
		for _, h := range hooks.Error {
			if err := checkPriority(src.name, d, h.Priority); err != nil {
				return nil, err
			}
			c.errs = append(c.errs, entry[ErrorFunc]{Hook: h, source: src.name})
		}
	}
	sortEntries(c.before)
	sortEntries(c.after)
	sortEntries(c.errs)

	if c.Len() > 0 {
		r.log.Debug("operation hooks attached",
			zap.String("field", d.FieldName),
			zap.Stringer("operation", d.Operation),
			zap.Int("before", len(c.before)),
			zap.Int("after", len(c.after)),
			zap.Int("error", len(c.errs)))
	}
	return c, nil
}

func checkPriority(name string, d Descriptor, p int) error {
	if p < MinPriority || p > MaxPriority {
		return errors.Errorf("hook %s on %s: priority %d outside [%d, %d]",
			name, d.FieldName, p, MinPriority, MaxPriority)
	}
	return nil
}

type entry[F any] struct {
	Hook[F]
	source string
}

func sortEntries[F any](es []entry[F]) {
	sort.SliceStable(es, func(i, j int) bool { return es[i].Priority < es[j].Priority })
}

// ExecFunc performs the underlying operation with the (possibly derived) input.
type ExecFunc func(ctx context.Context, input interface{}) (interface{}, error)

// Chain is the resolved hook sequence for one root field.
type Chain struct {
	field  string
	before []entry[BeforeFunc]
	after  []entry[AfterFunc]
	errs   []entry[ErrorFunc]
	calls  *prometheus.CounterVec
}

// Len returns the number of callbacks across all phases.
func (c *Chain) Len() int {
	return len(c.before) + len(c.after) + len(c.errs)
}

// Run executes before hooks, then exec, then either the after hooks on
// success or the error hooks on failure. Exactly one of the two trailing
// phases runs.
func (c *Chain) Run(ctx context.Context, input interface{}, inv *Invocation, exec ExecFunc) (interface{}, error) {
	result, err := c.execute(ctx, input, inv, exec)
	if err != nil {
		for _, h := range c.errs {
			c.observe("error")
			if herr := h.Callback(ctx, err, inv); herr != nil {
				err = herr
			}
		}
		return nil, err
	}
	for _, h := range c.after {
		c.observe("after")
		result, err = h.Callback(ctx, result, inv)
		if err != nil {
			return nil, errors.Wrapf(err, "after hook %s", h.source)
		}
	}
	return result, nil
}

func (c *Chain) execute(ctx context.Context, input interface{}, inv *Invocation, exec ExecFunc) (interface{}, error) {
	for _, h := range c.before {
		c.observe("before")
		out, err := h.Callback(ctx, input, inv)
		if err != nil {
			return nil, errors.Wrapf(err, "before hook %s", h.source)
		}
		if out == nil {
			return nil, errors.Wrapf(ErrRejected, "before hook %s", h.source)
		}
		input = out
	}
	return exec(ctx, input)
}

func (c *Chain) observe(phase string) {
	if c.calls != nil {
		c.calls.WithLabelValues(c.field, phase).Inc()
	}
}
