package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/groupaccess/pkg/permissions")

// Cache layers reported to metrics
const (
	layerRequest    = "request"
	layerPersistent = "persistent"
)

// Chain runs every calculator and merges their results
type Chain struct {
	calculators []Calculator
	backend     cache.Backend
	logger      *observability.Logger
	metrics     *observability.Metrics
	flight      singleflight.Group
}

// NewChain creates a chain. backend may be nil to disable the persistent cache.
func NewChain(calculators []Calculator, backend cache.Backend, logger *observability.Logger, metrics *observability.Metrics) *Chain {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Chain{
		calculators: calculators,
		backend:     backend,
		logger:      logger,
		metrics:     metrics,
	}
}

// CalculateFullPermissions returns the merged permissions of every calculator
// and scope for the account
func (c *Chain) CalculateFullPermissions(ctx context.Context, account group.Account) (*CalculatedPermissions, error) {
	if len(c.calculators) == 0 {
		return nil, ErrNoCalculators
	}

	memo := requestScopeFrom(ctx)
	memoKey := strconv.FormatInt(account.ID, 10) + "|" + account.RolesKey()
	if memo != nil {
		if e, ok := memo.get(memoKey); ok && c.fresh(ctx, e) {
			c.metrics.RecordPermissionCache(layerRequest, true)
			return e.perms, nil
		}
		c.metrics.RecordPermissionCache(layerRequest, false)
	}

	ctx, span := tracer.Start(ctx, "permissions.CalculateFullPermissions")
	defer span.End()
	span.SetAttributes(attribute.Int64("account.id", account.ID))

	result := NewCalculatedPermissions()
	for _, calc := range c.calculators {
		for _, scope := range calc.Scopes() {
			part, err := c.calculateScope(ctx, calc, account, scope)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			result = result.Merge(part)
		}
	}
	span.SetAttributes(attribute.Int("permissions.items", result.Len()))

	if memo != nil {
		checksum, err := c.checksum(ctx, result)
		if err == nil {
			memo.set(memoKey, &memoEntry{perms: result, checksum: checksum})
		}
	}
	return result, nil
}

// Calculate returns the cached or freshly calculated result of one scope
func (c *Chain) Calculate(ctx context.Context, account group.Account, scope group.Scope) (*CalculatedPermissions, error) {
	for _, calc := range c.calculators {
		if supportsScope(calc, scope) {
			return c.calculateScope(ctx, calc, account, scope)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScope, scope)
}

func (c *Chain) calculateScope(ctx context.Context, calc Calculator, account group.Account, scope group.Scope) (*CalculatedPermissions, error) {
	key := cacheKey(calc, account, scope)
	log := c.logger.WithFields(map[string]interface{}{"scope": string(scope), "cache_key": key})

	if c.backend != nil {
		data, err := c.backend.Get(ctx, key)
		switch {
		case err == nil:
			var cached CalculatedPermissions
			if err := json.Unmarshal(data, &cached); err == nil {
				c.metrics.RecordPermissionCache(layerPersistent, true)
				return &cached, nil
			}
			log.Warn("Discarding undecodable calculated permissions")
		case !errors.Is(err, cache.ErrCacheMiss):
			log.WithError(err).Warn("Permission cache lookup failed")
		}
		c.metrics.RecordPermissionCache(layerPersistent, false)
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		guard := guardTags(account)
		before, guardErr := c.guardChecksum(ctx, guard)

		start := time.Now()
		perms, err := calc.Calculate(ctx, account, scope)
		c.metrics.ObserveCalculation(string(scope), time.Since(start), err)
		if err != nil {
			return nil, err
		}

		if c.backend != nil && guardErr == nil {
			data, err := json.Marshal(perms)
			if err == nil {
				err = c.backend.Set(ctx, key, data, perms.CacheMetadata())
			}
			if err != nil {
				log.WithError(err).Warn("Failed to cache calculated permissions")
				return perms, nil
			}

			// Set checksums the tags on write, so an entry built from inputs
			// invalidated before that point would look fresh.
			after, err := c.guardChecksum(ctx, guard)
			if err != nil || after != before {
				log.Debug("Configuration changed during calculation, dropping cached permissions")
				if err := c.backend.Delete(ctx, key); err != nil {
					log.WithError(err).Warn("Failed to drop cached permissions")
				}
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate %s permissions: %w", scope, err)
	}
	return v.(*CalculatedPermissions), nil
}

// guardTags are invalidated by every change a calculation can depend on:
// any role or group type and any membership of the account.
func guardTags(account group.Account) []string {
	return []string{
		group.GroupRoleListTag,
		group.GroupTypeListTag,
		group.EntityRelationshipListTag(group.MembershipPluginID, account.ID),
	}
}

func (c *Chain) guardChecksum(ctx context.Context, tags []string) (int64, error) {
	if c.backend == nil {
		return 0, nil
	}
	return c.backend.Checksum(ctx, tags)
}

// fresh reports whether no tag of a memoized result was invalidated since it was stored
func (c *Chain) fresh(ctx context.Context, e *memoEntry) bool {
	if c.backend == nil {
		return true
	}
	checksum, err := c.checksum(ctx, e.perms)
	return err == nil && checksum == e.checksum
}

func (c *Chain) checksum(ctx context.Context, perms *CalculatedPermissions) (int64, error) {
	if c.backend == nil {
		return 0, nil
	}
	checksum, err := c.backend.Checksum(ctx, perms.CacheMetadata().Tags())
	if err != nil {
		c.logger.WithError(err).Warn("Failed to compute permission cache checksum")
	}
	return checksum, err
}

// cacheKey varies a scope's cache entry by what the calculator declares
func cacheKey(calc Calculator, account group.Account, scope group.Scope) string {
	parts := []string{"group_permissions", string(scope)}
	for _, cc := range calc.PersistentCacheContexts(scope) {
		switch cc {
		case cacheable.ContextUserRoles:
			parts = append(parts, "roles="+account.RolesKey())
		case cacheable.ContextUser:
			parts = append(parts, "user="+strconv.FormatInt(account.ID, 10))
		}
	}
	return strings.Join(parts, ":")
}
