package queryaccess

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// EntityQuery restricts a query on the base table of an entity type. Ungrouped
// entities stay visible; grouped ones need a grant through any plugin relating
// them that defines entity access. Config entity types are not stored in tables and are left alone.
//
// The query must select from the entity type's table without an alias.
// Entities in several groups are de-duplicated with DISTINCT.
func (r *Rewriter) EntityQuery(ctx context.Context, entityTypeID string, account group.Account, op relation.Operation) (*Rewrite, error) {
	switch op {
	case relation.OperationView, relation.OperationUpdate, relation.OperationDelete:
	default:
		return nil, fmt.Errorf("%s query %s: %w", entityTypeID, op, ErrUnsupportedOperation)
	}

	et, err := r.registry.EntityType(entityTypeID)
	if err != nil {
		return nil, err
	}
	if et.Config {
		return r.finish(entityTypeID, account, op, skipped()), nil
	}

	cols := columns{
		group:     clause.Column{Table: relationshipAlias, Name: "gid"},
		groupType: clause.Column{Table: relationshipAlias, Name: "group_type"},
	}
	if et.Owner && et.OwnerColumn != "" {
		cols.owner = clause.Column{Table: et.Table, Name: et.OwnerColumn}
	}
	publishable := op == relation.OperationView && et.Publishable && et.StatusColumn != ""
	if publishable {
		cols.status = clause.Column{Table: et.Table, Name: et.StatusColumn}
	}

	type plugin struct {
		id    string
		admin string
		rules []rule
	}
	var (
		supported []plugin
		ids       []string
	)
	for _, pluginID := range r.registry.PluginIDsByEntityTypeAccess(entityTypeID) {
		provider, err := r.registry.PermissionProvider(pluginID)
		if err != nil {
			return nil, err
		}
		rules := entityRules(provider, op, publishable)
		if !grants(provider.AdminPermission(), rules) {
			continue
		}
		supported = append(supported, plugin{id: pluginID, admin: provider.AdminPermission(), rules: rules})
		ids = append(ids, pluginID)
	}
	if len(supported) == 0 {
		return r.finish(entityTypeID, account, op, skipped()), nil
	}

	items, err := r.calculate(ctx, account)
	if err != nil {
		return nil, err
	}

	b := newBuilder(account)
	b.join(
		fmt.Sprintf("LEFT JOIN %s %s ON %s.entity_id = %s.%s AND %s.plugin_id IN ?",
			storage.RelationshipTable, relationshipAlias, relationshipAlias,
			et.Table, et.IDColumn, relationshipAlias),
		ids,
	)

	pluginColumn := clause.Column{Table: relationshipAlias, Name: "plugin_id"}
	ungrouped := clause.Eq{Column: clause.Column{Table: relationshipAlias, Name: "id"}, Value: nil}
	disjuncts := []clause.Expression{ungrouped}
	var (
		tags    []string
		ownUsed bool
	)
	for _, p := range supported {
		tags = append(tags, group.RelationshipListTag(p.id))
		expr, own := b.condition(items, p.admin, p.rules, cols)
		ownUsed = ownUsed || own
		if expr != nil {
			disjuncts = append(disjuncts, allOf(clause.Eq{Column: pluginColumn, Value: p.id}, expr))
		}
	}

	rw := &Rewrite{
		applied:  true,
		denied:   len(disjuncts) == 1,
		joins:    b.joins,
		where:    anyOf(disjuncts...),
		distinct: et.Table + ".*",
		meta:     accessMetadata(ownUsed, tags...),
	}
	return r.finish(entityTypeID, account, op, rw), nil
}

// entityRules maps an operation to the permissions granting it. Viewing a
// publishable entity type is split by status: published rows need the view
// permission, unpublished ones the unpublished view permissions.
func entityRules(provider relation.PermissionProvider, op relation.Operation, publishable bool) []rule {
	permission := func(op relation.Operation, scope relation.OwnerScope) string {
		return provider.Permission(op, relation.TargetEntity, scope)
	}
	if publishable {
		return []rule{
			statusRule(true, permission(relation.OperationView, relation.Any), permission(relation.OperationView, relation.Own)),
			statusRule(false, permission(relation.OperationViewUnpublished, relation.Any), permission(relation.OperationViewUnpublished, relation.Own)),
		}
	}
	return []rule{{any: permission(op, relation.Any), own: permission(op, relation.Own)}}
}
