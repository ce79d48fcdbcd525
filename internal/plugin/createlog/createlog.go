// Package createlog logs every attempted create mutation, together with the
// id of the calling user, before the mutation runs.
package createlog

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/TechXTT/pgraph/internal/introspect"
	"github.com/TechXTT/pgraph/internal/plugin"
)

// Matches reports whether d is a built-in create mutation on a table.
func Matches(d plugin.Descriptor) bool {
	if !d.IsRootMutation() {
		return false
	}
	if !d.IsPgCreateMutationField || d.Introspection == nil {
		return false
	}
	return d.Introspection.Kind == introspect.KindClass
}

// Message renders the audit line for a create attempt on table.
func Message(table, callerID string) string {
	if callerID == "" {
		return fmt.Sprintf("A create was attempted on table %s by an anonymous user", table)
	}
	return fmt.Sprintf("A create was attempted on table %s by user with id %s", table, callerID)
}

// Attempt is bound to one create mutation field when the schema is built.
type Attempt struct {
	Table string
	Log   *zap.Logger
	// Failures, when set, counts log writes that panicked.
	Failures *atomic.Int64
}

// Before logs the attempt and hands input back untouched. Logging is best
// effort: a panic in the logger is recovered and the input still returned.
func (a Attempt) Before(_ context.Context, input interface{}, inv *plugin.Invocation) (out interface{}, err error) {
	out = input
	defer func() {
		if r := recover(); r != nil {
			if a.Failures != nil {
				a.Failures.Add(1)
			}
			err = nil
		}
	}()

	callerID, _ := inv.Caller()
	fields := []zap.Field{zap.String("table", a.Table)}
	if callerID != "" {
		fields = append(fields, zap.String("user_id", callerID))
	}
	if inv.RequestID != "" {
		fields = append(fields, zap.String("request_id", inv.RequestID))
	}
	a.Log.Info(Message(a.Table, callerID), fields...)
	return input, nil
}

// Plugin registers the create logger.
type Plugin struct {
	log      *zap.Logger
	failures atomic.Int64
}

// New returns the plugin writing audit lines to log.
func New(log *zap.Logger) *Plugin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Plugin{log: log}
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "createlog" }

// Failures reports how many audit lines were lost to a failing logger.
func (p *Plugin) Failures() int64 { return p.failures.Load() }

// Init registers the create hook with r.
func (p *Plugin) Init(r *plugin.Registry) error {
	r.AddOperationHook(p.Name(), p.hooksFor)
	return nil
}

func (p *Plugin) hooksFor(d plugin.Descriptor) *plugin.Hooks {
	if !Matches(d) {
		return nil
	}
	attempt := Attempt{Table: d.Introspection.Name, Log: p.log, Failures: &p.failures}
	return &plugin.Hooks{
		Before: []plugin.Hook[plugin.BeforeFunc]{
			{Priority: plugin.DefaultPriority, Callback: attempt.Before},
		},
	}
}
