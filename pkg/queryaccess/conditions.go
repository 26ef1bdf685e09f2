package queryaccess

import (
	"fmt"
	"sort"
	"strconv"

	"gorm.io/gorm/clause"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/permissions"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// Aliases of the joined relationship table
const (
	membershipAlias   = "gm"
	relationshipAlias = "gr"
)

type join struct {
	sql  string
	args []interface{}
}

// builder collects the joins of one query. The membership join is added the
// first time an outsider or insider bucket needs it.
type builder struct {
	account      group.Account
	joins        []join
	memberJoined bool
}

func newBuilder(account group.Account) *builder {
	return &builder{account: account}
}

func (b *builder) join(sql string, args ...interface{}) {
	b.joins = append(b.joins, join{sql: sql, args: args})
}

// membership left joins the account's membership of the row's group
func (b *builder) membership(groupColumn clause.Column) {
	if b.memberJoined {
		return
	}
	b.memberJoined = true
	b.join(
		fmt.Sprintf("LEFT JOIN %s %s ON %s.gid = %s.%s AND %s.plugin_id = ? AND %s.entity_id = ?",
			storage.RelationshipTable, membershipAlias, membershipAlias,
			groupColumn.Table, groupColumn.Name, membershipAlias, membershipAlias),
		group.MembershipPluginID, b.account.ID,
	)
}

// scopes matches rows granted through any identifier of the buckets
func (b *builder) scopes(bk buckets, cols columns) clause.Expression {
	member := clause.Column{Table: membershipAlias, Name: "entity_id"}

	var exprs []clause.Expression
	if ids := bk.identifiers(group.ScopeOutsider); len(ids) > 0 {
		b.membership(cols.group)
		exprs = append(exprs, allOf(
			clause.IN{Column: cols.groupType, Values: ids},
			clause.Eq{Column: member, Value: nil},
		))
	}
	if ids := bk.identifiers(group.ScopeInsider); len(ids) > 0 {
		b.membership(cols.group)
		exprs = append(exprs, allOf(
			clause.IN{Column: cols.groupType, Values: ids},
			clause.Neq{Column: member, Value: nil},
		))
	}
	if ids := bk.groupIDs(); len(ids) > 0 {
		exprs = append(exprs, clause.IN{Column: cols.group, Values: ids})
	}
	return anyOf(exprs...)
}

// buckets maps scopes to the identifiers granting access
type buckets map[group.Scope]map[string]struct{}

func newBuckets() buckets {
	return make(buckets)
}

func (bk buckets) add(item permissions.Item) {
	if bk[item.Scope] == nil {
		bk[item.Scope] = make(map[string]struct{})
	}
	bk[item.Scope][item.Identifier] = struct{}{}
}

func (bk buckets) empty() bool {
	return len(bk) == 0
}

func (bk buckets) sorted(scope group.Scope) []string {
	ids := make([]string, 0, len(bk[scope]))
	for id := range bk[scope] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (bk buckets) identifiers(scope group.Scope) []interface{} {
	ids := bk.sorted(scope)
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}

// groupIDs returns the individual identifiers as group IDs
func (bk buckets) groupIDs() []interface{} {
	var values []interface{}
	for _, id := range bk.sorted(group.ScopeIndividual) {
		gid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		values = append(values, gid)
	}
	return values
}

// anyOf and allOf never build single element groups; gorm joins those to
// their siblings with OR
func anyOf(exprs ...clause.Expression) clause.Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return clause.OrConditions{Exprs: exprs}
}

func allOf(exprs ...clause.Expression) clause.Expression {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return clause.AndConditions{Exprs: exprs}
}

// alwaysFalse matches no row
func alwaysFalse() clause.Expression {
	return clause.Expr{SQL: "1 = 0"}
}
