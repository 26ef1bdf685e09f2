package queryaccess

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/permissions"
	"github.com/platinummonkey/groupaccess/pkg/relation"
)

// Rewrite outcomes recorded in metrics
const (
	OutcomeSkipped  = "skipped"
	OutcomeDenied   = "denied"
	OutcomeFiltered = "filtered"
)

// Rewriter builds the access conditions of list queries
type Rewriter struct {
	calculation permissions.Calculation
	registry    *relation.Registry
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// Option configures a Rewriter
type Option func(*Rewriter)

// WithMetrics records every rewrite
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Rewriter) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(r *Rewriter) { r.logger = l }
}

// NewRewriter creates a rewriter over a permission calculation and the plugin
// registry
func NewRewriter(calculation permissions.Calculation, registry *relation.Registry, opts ...Option) *Rewriter {
	r := &Rewriter{calculation: calculation, registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return r
}

// Rewrite holds the joins and conditions restricting one query
type Rewrite struct {
	applied  bool
	denied   bool
	joins    []join
	where    clause.Expression
	distinct string
	meta     cacheable.Metadata
	used     bool
}

// Applied reports whether the query is restricted at all. Unsupported
// operations leave the query untouched.
func (rw *Rewrite) Applied() bool {
	return rw.applied
}

// Denied reports whether nothing was granted
func (rw *Rewrite) Denied() bool {
	return rw.denied
}

// CacheMetadata describes what the filtered result varies by
func (rw *Rewrite) CacheMetadata() cacheable.Metadata {
	return rw.meta
}

// Scope applies the rewrite to a query. It is meant for gorm's Scopes and must
// be used for a single query.
func (rw *Rewrite) Scope(db *gorm.DB) *gorm.DB {
	if rw.used {
		_ = db.AddError(ErrRewriteReused)
		return db
	}
	rw.used = true
	if !rw.applied {
		return db
	}

	for _, j := range rw.joins {
		db = db.Joins(j.sql, j.args...)
	}
	if rw.distinct != "" {
		db = db.Distinct(rw.distinct)
	}
	return db.Where(rw.where)
}

func skipped() *Rewrite {
	return &Rewrite{meta: cacheable.New()}
}

// rule names the permissions granting an operation on rows of one status.
// A nil status matches rows regardless of their publish state.
type rule struct {
	status *bool
	any    string
	own    string
}

func statusRule(published bool, anyPerm, ownPerm string) rule {
	return rule{status: &published, any: anyPerm, own: ownPerm}
}

// grants reports whether any permission of the rules is defined
func grants(admin string, rules []rule) bool {
	if admin != "" {
		return true
	}
	for _, r := range rules {
		if r.any != "" || r.own != "" {
			return true
		}
	}
	return false
}

// columns locate the values conditions compare against
type columns struct {
	group     clause.Column // ID of the group the row belongs to
	groupType clause.Column
	owner     clause.Column // empty when rows have no owner
	status    clause.Column // empty when rows are not publishable
}

// condition builds the disjunction granting access through the rules. It
// reports whether an own bucket contributed.
func (b *builder) condition(items []permissions.Item, admin string, rules []rule, cols columns) (clause.Expression, bool) {
	var (
		exprs   []clause.Expression
		ownUsed bool
	)
	for _, r := range rules {
		anyBucket, ownBucket := newBuckets(), newBuckets()
		for _, item := range items {
			switch {
			case item.Admin, admin != "" && item.HasPermission(admin), r.any != "" && item.HasPermission(r.any):
				anyBucket.add(item)
			case r.own != "" && item.HasPermission(r.own):
				ownBucket.add(item)
			}
		}
		if cols.owner.Name == "" || b.account.IsAnonymous() {
			ownBucket = newBuckets()
		}

		var disjuncts []clause.Expression
		if !anyBucket.empty() {
			if expr := b.scopes(anyBucket, cols); expr != nil {
				disjuncts = append(disjuncts, expr)
			}
		}
		if !ownBucket.empty() {
			if expr := b.scopes(ownBucket, cols); expr != nil {
				ownUsed = true
				disjuncts = append(disjuncts, allOf(clause.Eq{Column: cols.owner, Value: b.account.ID}, expr))
			}
		}

		expr := anyOf(disjuncts...)
		if expr == nil {
			continue
		}
		if r.status != nil && cols.status.Name != "" {
			expr = allOf(clause.Eq{Column: cols.status, Value: *r.status}, expr)
		}
		exprs = append(exprs, expr)
	}
	return anyOf(exprs...), ownUsed
}

func (r *Rewriter) calculate(ctx context.Context, account group.Account) ([]permissions.Item, error) {
	perms, err := r.calculation.CalculateFullPermissions(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("calculate permissions of user %d: %w", account.ID, err)
	}
	return perms.Items(), nil
}

func (r *Rewriter) finish(kind string, account group.Account, op relation.Operation, rw *Rewrite) *Rewrite {
	outcome := OutcomeSkipped
	switch {
	case rw.denied:
		outcome = OutcomeDenied
	case rw.applied:
		outcome = OutcomeFiltered
	}
	r.metrics.RecordQueryRewrite(kind, outcome)
	r.logger.WithFields(map[string]interface{}{
		"query":     kind,
		"operation": string(op),
		"user_id":   account.ID,
		"outcome":   outcome,
	}).Debug("Query access rewrite")
	return rw
}

func accessMetadata(ownUsed bool, tags ...string) cacheable.Metadata {
	meta := cacheable.New().
		AddTags(tags...).
		AddContexts(cacheable.ContextGroupPermissions)
	if ownUsed {
		meta = meta.AddContexts(cacheable.ContextUser)
	}
	return meta
}
