package access

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// Engine routes access checks to the handlers of the relation plugins
type Engine struct {
	registry      *relation.Registry
	checker       PermissionChecker
	relationships RelationshipLoader
	metrics       *observability.Metrics
	logger        *observability.Logger

	mu       sync.Mutex
	handlers map[string]builtHandler
}

type builtHandler struct {
	handler    Handler
	entityType relation.EntityType
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics records every decision
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an access engine. Handler decorators must be registered on
// the registry before the first check.
func NewEngine(registry *relation.Registry, checker PermissionChecker, relationships RelationshipLoader, opts ...Option) *Engine {
	e := &Engine{
		registry:      registry,
		checker:       checker,
		relationships: relationships,
		handlers:      make(map[string]builtHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return e
}

// Decorate registers an access control decorator for a plugin, or for every
// derivative when pluginID is a base plugin ID
func Decorate(registry *relation.Registry, pluginID string, decorator relation.Decorator[Handler]) {
	relation.Decorate(registry, relation.KindAccessControl, pluginID, decorator)
}

// Handler returns the decorated handler of a plugin. Handlers are rebuilt
// when the descriptor of the plugin's entity type was replaced.
func (e *Engine) Handler(pluginID string) (Handler, error) {
	def, err := e.registry.Definition(pluginID)
	if err != nil {
		return nil, err
	}
	et, err := e.registry.EntityType(def.EntityTypeID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.handlers[pluginID]; ok && c.entityType == et {
		return c.handler, nil
	}

	provider, err := e.registry.PermissionProvider(pluginID)
	if err != nil {
		return nil, err
	}

	base := NewHandler(def, et, provider, e.checker, e.relationships)
	h := relation.Build(e.registry, relation.KindAccessControl, def, base)
	e.handlers[pluginID] = builtHandler{handler: h, entityType: et}
	return h, nil
}

// RelationshipAccess checks an operation on a relationship
func (e *Engine) RelationshipAccess(ctx context.Context, rel *group.Relationship, op relation.Operation, account group.Account) (Result, error) {
	h, err := e.Handler(rel.PluginID)
	if err != nil {
		return Result{}, err
	}
	result, err := h.RelationshipAccess(ctx, rel, op, account)
	if err != nil {
		return Result{}, err
	}
	e.record(relation.TargetRelationship, op, account, result)
	return result, nil
}

// RelationshipCreateAccess checks whether the account may relate new entities
// to the group through the plugin
func (e *Engine) RelationshipCreateAccess(ctx context.Context, g *group.Group, pluginID string, account group.Account) (Result, error) {
	h, err := e.Handler(pluginID)
	if err != nil {
		return Result{}, err
	}
	result, err := h.RelationshipCreateAccess(ctx, g, account)
	if err != nil {
		return Result{}, err
	}
	e.record(relation.TargetRelationship, relation.OperationCreate, account, result)
	return result, nil
}

// EntityAccess checks an operation on an entity through every plugin that
// relates its type and defines entity access
func (e *Engine) EntityAccess(ctx context.Context, entity group.Entity, op relation.Operation, account group.Account) (_ Result, err error) {
	ctx, span := observability.StartSpan(ctx, "access.EntityAccess",
		attribute.String("entity.type", entity.TypeID),
		attribute.String("operation", string(op)),
		attribute.Int64("account.id", account.ID),
	)
	defer func() { observability.EndSpan(span, err) }()

	pluginIDs := e.registry.PluginIDsByEntityTypeAccess(entity.TypeID)
	results := make([]Result, 0, len(pluginIDs))
	for _, pluginID := range pluginIDs {
		h, err := e.Handler(pluginID)
		if err != nil {
			return Result{}, err
		}
		r, err := h.EntityAccess(ctx, entity, op, account)
		if err != nil {
			return Result{}, err
		}
		results = append(results, r)
	}

	result := Combine(results...)
	e.record(relation.TargetEntity, op, account, result)
	return result, nil
}

// EntityCreateAccess checks whether the account may create entities inside the
// group through the plugin
func (e *Engine) EntityCreateAccess(ctx context.Context, g *group.Group, pluginID string, account group.Account) (Result, error) {
	h, err := e.Handler(pluginID)
	if err != nil {
		return Result{}, err
	}
	result, err := h.EntityCreateAccess(ctx, g, account)
	if err != nil {
		return Result{}, err
	}
	e.record(relation.TargetEntity, relation.OperationCreate, account, result)
	return result, nil
}

func (e *Engine) record(target relation.Target, op relation.Operation, account group.Account, result Result) {
	e.metrics.RecordAccessDecision(string(target), string(op), result.Outcome.String())
	e.logger.WithFields(map[string]interface{}{
		"target":    string(target),
		"operation": string(op),
		"user_id":   account.ID,
		"outcome":   result.Outcome.String(),
	}).Debug("Access decision")
}
