// File: internal/plugin/hooks.go
package plugin

import (
	"context"

	"github.com/TechXTT/pgraph/internal/introspect"
)

// OperationKind says which root type a field belongs to.
type OperationKind int

const (
	Query OperationKind = iota
	Mutation
	Subscription
)

func (k OperationKind) String() string {
	switch k {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Descriptor is the build-time metadata of one root field.
type Descriptor struct {
	FieldName string
	Operation OperationKind

	IsPgCreateMutationField bool
	IsPgUpdateMutationField bool
	IsPgDeleteMutationField bool

	// Introspection is nil for fields not backed by a catalog object.
	Introspection *introspect.Object
}

func (d Descriptor) IsRootQuery() bool        { return d.Operation == Query }
func (d Descriptor) IsRootMutation() bool     { return d.Operation == Mutation }
func (d Descriptor) IsRootSubscription() bool { return d.Operation == Subscription }

// Invocation carries per-request data into hook callbacks.
type Invocation struct {
	FieldName     string
	OperationName string
	RequestID     string
	Args          map[string]interface{}

	// CallerID is empty for anonymous requests.
	CallerID string
}

// Caller returns the caller id and whether one is present.
func (inv *Invocation) Caller() (string, bool) {
	return inv.CallerID, inv.CallerID != ""
}

// BeforeFunc runs before the operation. It must return the input or a
// derivative of it; returning nil rejects the operation.
type BeforeFunc func(ctx context.Context, input interface{}, inv *Invocation) (interface{}, error)

// AfterFunc runs after a successful operation and may replace the result.
type AfterFunc func(ctx context.Context, result interface{}, inv *Invocation) (interface{}, error)

// ErrorFunc runs instead of the after phase when the operation fails. It
// returns the error or a derivative; a nil return keeps the original error.
type ErrorFunc func(ctx context.Context, err error, inv *Invocation) error

// Priorities range from MinPriority to MaxPriority; lower runs first.
const (
	MinPriority     = 0
	DefaultPriority = 500
	MaxPriority     = 1000
)

// Hook is one callback with its priority.
type Hook[F any] struct {
	Priority int
	Callback F
}

// Hooks is what an OperationHookFunc returns for a matched field.
type Hooks struct {
	Before []Hook[BeforeFunc]
	After  []Hook[AfterFunc]
	Error  []Hook[ErrorFunc]
}

// OperationHookFunc is called once per root field during schema build and
// returns nil when it does not apply to the field.
type OperationHookFunc func(d Descriptor) *Hooks

// Plugin registers operation hooks on a registry.
type Plugin interface {
	Name() string
	Init(r *Registry) error
}
