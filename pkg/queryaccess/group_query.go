package queryaccess

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// GroupQuery restricts a query on the groups table. Unpublished groups need
// the unpublished view permissions; update and delete map to "edit group" and
// "delete group".
func (r *Rewriter) GroupQuery(ctx context.Context, account group.Account, op relation.Operation) (*Rewrite, error) {
	var rules []rule
	switch op {
	case relation.OperationView:
		rules = []rule{
			statusRule(true, relation.PermissionViewGroup, ""),
			statusRule(false, relation.PermissionViewAnyUnpublished, relation.PermissionViewOwnUnpublished),
		}
	case relation.OperationUpdate:
		rules = []rule{{any: relation.PermissionEditGroup}}
	case relation.OperationDelete:
		rules = []rule{{any: relation.PermissionDeleteGroup}}
	default:
		return nil, fmt.Errorf("group query %s: %w", op, ErrUnsupportedOperation)
	}

	items, err := r.calculate(ctx, account)
	if err != nil {
		return nil, err
	}

	cols := columns{
		group:     clause.Column{Table: storage.GroupTable, Name: "id"},
		groupType: clause.Column{Table: storage.GroupTable, Name: "type"},
		owner:     clause.Column{Table: storage.GroupTable, Name: "uid"},
		status:    clause.Column{Table: storage.GroupTable, Name: "status"},
	}
	b := newBuilder(account)
	where, ownUsed := b.condition(items, "", rules, cols)

	rw := &Rewrite{applied: true, meta: accessMetadata(ownUsed, group.GroupListTag)}
	if where == nil {
		rw.denied = true
		rw.where = alwaysFalse()
	} else {
		rw.joins = b.joins
		rw.where = where
	}
	return r.finish("group", account, op, rw), nil
}
