// Package queryaccess restricts list queries of groups, relationships and
// grouped entities to the rows an account may access.
//
// A Rewriter computes the account's calculated permissions once per query and
// turns them into a gorm condition tree. Outsider and insider grants are made
// mutually exclusive by left joining the account's membership of the row's
// group; individual grants match group IDs directly. When nothing is granted
// the query matches no rows, except ungrouped entities which are left to other
// access systems.
//
// Usage:
//
//	rw, err := rewriter.EntityQuery(ctx, "node", account, relation.OperationView)
//	if err != nil {
//	    return err
//	}
//	var nodes []Node
//	err = db.Table("node_field_data").Scopes(rw.Scope).Find(&nodes).Error
//
// A Rewrite belongs to one query; applying it twice fails with ErrRewriteReused.
package queryaccess
