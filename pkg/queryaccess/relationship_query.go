package queryaccess

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// RelationshipQuery restricts a query on the relationships table. Rows of
// plugins that define no permission for the operation are left alone.
func (r *Rewriter) RelationshipQuery(ctx context.Context, account group.Account, op relation.Operation) (*Rewrite, error) {
	switch op {
	case relation.OperationView, relation.OperationUpdate, relation.OperationDelete:
	default:
		return nil, fmt.Errorf("relationship query %s: %w", op, ErrUnsupportedOperation)
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
	for _, def := range r.registry.Definitions() {
		provider, err := r.registry.PermissionProvider(def.ID)
		if err != nil {
			return nil, err
		}
		rules := []rule{{
			any: provider.Permission(op, relation.TargetRelationship, relation.Any),
			own: provider.Permission(op, relation.TargetRelationship, relation.Own),
		}}
		if !grants(provider.AdminPermission(), rules) {
			continue
		}
		supported = append(supported, plugin{id: def.ID, admin: provider.AdminPermission(), rules: rules})
		ids = append(ids, def.ID)
	}
	if len(supported) == 0 {
		return r.finish("relationship", account, op, skipped()), nil
	}

	items, err := r.calculate(ctx, account)
	if err != nil {
		return nil, err
	}

	pluginColumn := clause.Column{Table: storage.RelationshipTable, Name: "plugin_id"}
	cols := columns{
		group:     clause.Column{Table: storage.RelationshipTable, Name: "gid"},
		groupType: clause.Column{Table: storage.RelationshipTable, Name: "group_type"},
		owner:     clause.Column{Table: storage.RelationshipTable, Name: "uid"},
	}
	b := newBuilder(account)

	var (
		disjuncts []clause.Expression
		tags      []string
		ownUsed   bool
	)
	for _, p := range supported {
		tags = append(tags, group.RelationshipListTag(p.id))
		expr, own := b.condition(items, p.admin, p.rules, cols)
		ownUsed = ownUsed || own
		if expr != nil {
			disjuncts = append(disjuncts, allOf(clause.Eq{Column: pluginColumn, Value: p.id}, expr))
		}
	}

	rw := &Rewrite{applied: true, meta: accessMetadata(ownUsed, tags...)}
	passThrough := clause.Not(clause.IN{Column: pluginColumn, Values: stringValues(ids)})
	if len(disjuncts) == 0 {
		rw.denied = true
		rw.where = passThrough
	} else {
		rw.joins = b.joins
		rw.where = anyOf(append(disjuncts, passThrough)...)
	}
	return r.finish("relationship", account, op, rw), nil
}

func stringValues(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
