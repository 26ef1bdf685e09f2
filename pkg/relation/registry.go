package relation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/sirupsen/logrus"
)

// HandlerKind names a family of plugin handlers
type HandlerKind string

const (
	KindAccessControl      HandlerKind = "access_control"
	KindPermissionProvider HandlerKind = "permission_provider"
)

// Decorator wraps the handler built so far for a plugin
type Decorator[T any] func(def Definition, inner T) T

type handlerKey struct {
	kind     HandlerKind
	pluginID string
}

// Registry maps plugin IDs to definitions and handler decorators
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	entityTypes map[string]EntityType
	decorators  map[handlerKey][]any
	log         *logrus.Logger
}

// UserEntityType describes platform users, the target of memberships
var UserEntityType = EntityType{
	ID:       "user",
	Label:    "User",
	Table:    "users",
	IDColumn: "uid",
}

// MembershipDefinition is the built-in plugin relating users to groups
var MembershipDefinition = Definition{
	ID:              group.MembershipPluginID,
	Label:           "Group membership",
	EntityTypeID:    "user",
	AdminPermission: PermissionAdministerMember,
}

// NewRegistry creates a registry holding the built-in membership plugin
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}

	r := &Registry{
		definitions: make(map[string]Definition),
		entityTypes: make(map[string]EntityType),
		decorators:  make(map[handlerKey][]any),
		log:         log,
	}
	r.entityTypes[UserEntityType.ID] = UserEntityType
	r.definitions[MembershipDefinition.ID] = MembershipDefinition
	Decorate[PermissionProvider](r, KindPermissionProvider, group.MembershipPluginID, decorateMembershipPermissions)
	return r
}

// RegisterEntityType adds or replaces an entity type descriptor
func (r *Registry) RegisterEntityType(et EntityType) error {
	if et.ID == "" {
		return fmt.Errorf("%w: entity type id is required", ErrInvalidDefinition)
	}
	if et.IDColumn == "" {
		et.IDColumn = "id"
	}
	if et.Table == "" {
		et.Table = et.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entityTypes[et.ID] = et
	return nil
}

// Register adds a plugin definition. Its entity type must be registered first.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" || def.EntityTypeID == "" {
		return fmt.Errorf("%w: %q needs an id and an entity type", ErrInvalidDefinition, def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, def.ID)
	}
	if _, ok := r.entityTypes[def.EntityTypeID]; !ok {
		return fmt.Errorf("plugin %s: %w: %s", def.ID, ErrUnknownEntityType, def.EntityTypeID)
	}

	r.definitions[def.ID] = def
	r.log.Debugf("Registered relation plugin %s for entity type %s", def.ID, def.EntityTypeID)
	return nil
}

// Has reports whether a plugin is registered
func (r *Registry) Has(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[pluginID]
	return ok
}

// Definition returns a plugin definition by ID
func (r *Registry) Definition(pluginID string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[pluginID]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
	}
	return def, nil
}

// EntityType returns an entity type descriptor by ID
func (r *Registry) EntityType(entityTypeID string) (EntityType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	et, ok := r.entityTypes[entityTypeID]
	if !ok {
		return EntityType{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityTypeID)
	}
	return et, nil
}

// Definitions returns every plugin definition sorted by ID
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// PluginIDsForEntityType returns the sorted IDs of plugins relating the entity type
func (r *Registry) PluginIDsForEntityType(entityTypeID string) []string {
	var ids []string
	for _, def := range r.Definitions() {
		if def.EntityTypeID == entityTypeID {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// PluginIDsByEntityTypeAccess narrows PluginIDsForEntityType to plugins that
// define access to the related entities themselves
func (r *Registry) PluginIDsByEntityTypeAccess(entityTypeID string) []string {
	var ids []string
	for _, def := range r.Definitions() {
		if def.EntityTypeID == entityTypeID && def.EntityAccess {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// PermissionProvider builds the permission provider of a plugin
func (r *Registry) PermissionProvider(pluginID string) (PermissionProvider, error) {
	def, err := r.Definition(pluginID)
	if err != nil {
		return nil, err
	}
	et, err := r.EntityType(def.EntityTypeID)
	if err != nil {
		return nil, err
	}
	return Build(r, KindPermissionProvider, def, NewPermissionProvider(def, et)), nil
}

// Permissions lists the group permissions plus those of every plugin
func (r *Registry) Permissions() ([]Permission, error) {
	perms := GroupPermissions()
	for _, def := range r.Definitions() {
		provider, err := r.PermissionProvider(def.ID)
		if err != nil {
			return nil, err
		}
		perms = append(perms, provider.Permissions()...)
	}
	return perms, nil
}

// Decorate registers a decorator for a handler kind of a plugin. Registering
// on a base plugin ID also applies to all of its derivatives.
func Decorate[T any](r *Registry, kind HandlerKind, pluginID string, decorator Decorator[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := handlerKey{kind: kind, pluginID: pluginID}
	r.decorators[key] = append(r.decorators[key], decorator)
}

// Build wraps base with the decorators registered for the plugin: first those of
// the base plugin, then those of the exact plugin ID
func Build[T any](r *Registry, kind HandlerKind, def Definition, base T) T {
	r.mu.RLock()
	var chain []any
	if baseID := def.BaseID(); baseID != def.ID {
		chain = append(chain, r.decorators[handlerKey{kind: kind, pluginID: baseID}]...)
	}
	chain = append(chain, r.decorators[handlerKey{kind: kind, pluginID: def.ID}]...)
	r.mu.RUnlock()

	handler := base
	for _, d := range chain {
		decorator, ok := d.(Decorator[T])
		if !ok {
			r.log.Warnf("Ignoring %s decorator of unexpected type %T for plugin %s", kind, d, def.ID)
			continue
		}
		handler = decorator(def, handler)
	}
	return handler
}
