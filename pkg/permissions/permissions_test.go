package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/cacheable"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	anonymous = group.AnonymousAccount()
	alice     = group.Account{ID: 7}
	bob       = group.Account{ID: 8}
	carol     = group.Account{ID: 9, Roles: []string{"administrator"}}
)

func TestItem(t *testing.T) {
	item := NewItem(group.ScopeInsider, "foo", []string{"view group", "edit group", "view group"}, false)
	assert.Equal(t, []string{"edit group", "view group"}, item.Permissions)
	assert.True(t, item.HasPermission("edit group"))
	assert.False(t, item.HasPermission("delete group"))

	admin := NewItem(group.ScopeInsider, "foo", []string{"view group"}, true)
	assert.Empty(t, admin.Permissions)
	assert.True(t, admin.HasPermission("delete group"))

	merged := item.merge(NewItem(group.ScopeInsider, "foo", []string{"delete group"}, false))
	assert.Equal(t, []string{"delete group", "edit group", "view group"}, merged.Permissions)

	merged = item.merge(admin)
	assert.True(t, merged.Admin)
	assert.Empty(t, merged.Permissions)
}

func TestCalculatedPermissions_MergeIsCommutative(t *testing.T) {
	a := NewCalculatedPermissions()
	a.addItem(NewItem(group.ScopeOutsider, "foo", []string{"view group"}, false))
	a.addItem(NewItem(group.ScopeIndividual, "1", []string{"edit group"}, false))
	a.addCacheMetadata(cacheable.New().AddTags("a").WithMaxAge(60))

	b := NewCalculatedPermissions()
	b.addItem(NewItem(group.ScopeOutsider, "foo", []string{"join group"}, false))
	b.addItem(NewItem(group.ScopeIndividual, "1", nil, true))
	b.addCacheMetadata(cacheable.New().AddTags("b").AddContexts(cacheable.ContextUser))

	ab := a.Merge(b)
	ba := b.Merge(a)
	assert.True(t, ab.Equal(ba))
	assert.True(t, ab.Merge(b).Equal(ab), "merging is idempotent")

	item, ok := ab.Item(group.ScopeOutsider, "foo")
	require.True(t, ok)
	assert.Equal(t, []string{"join group", "view group"}, item.Permissions)

	item, ok = ab.Item(group.ScopeIndividual, "1")
	require.True(t, ok)
	assert.True(t, item.Admin)

	assert.Equal(t, []string{"a", "b"}, ab.CacheMetadata().Tags())
	assert.Equal(t, 60, ab.CacheMetadata().MaxAge())

	// Inputs are left untouched
	item, _ = a.Item(group.ScopeOutsider, "foo")
	assert.Equal(t, []string{"view group"}, item.Permissions)
}

func TestCalculatedPermissions_JSON(t *testing.T) {
	in := NewCalculatedPermissions()
	in.addItem(NewItem(group.ScopeInsider, "foo", []string{"view group"}, false))
	in.addItem(NewItem(group.ScopeIndividual, "3", nil, true))
	in.addCacheMetadata(cacheable.New().AddTags("config:group_role_list"))

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out CalculatedPermissions
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Equal(&out))
}

func TestSynchronizedCalculator(t *testing.T) {
	ctx := context.Background()
	config, _ := newFixture()
	calc := NewSynchronizedCalculator(config)

	t.Run("one item per group type even without matching roles", func(t *testing.T) {
		for _, account := range []group.Account{anonymous, alice, carol} {
			for _, scope := range calc.Scopes() {
				perms, err := calc.Calculate(ctx, account, scope)
				require.NoError(t, err)
				assert.Len(t, perms.ItemsByScope(scope), len(config.types))
				assert.Equal(t, perms.Len(), len(config.types))
			}
		}
	})

	t.Run("anonymous outsider role only matches anonymous accounts", func(t *testing.T) {
		perms, err := calc.Calculate(ctx, anonymous, group.ScopeOutsider)
		require.NoError(t, err)
		item, _ := perms.Item(group.ScopeOutsider, "foo")
		assert.Equal(t, []string{"view group"}, item.Permissions)
		assert.True(t, perms.CacheMetadata().HasTag("config:group.role.foo-anonymous"))
		assert.False(t, perms.CacheMetadata().HasTag("config:group.role.foo-outsider"))

		perms, err = calc.Calculate(ctx, alice, group.ScopeOutsider)
		require.NoError(t, err)
		item, _ = perms.Item(group.ScopeOutsider, "foo")
		assert.Equal(t, []string{"join group", "view group"}, item.Permissions)
	})

	t.Run("insider roles never match anonymous accounts", func(t *testing.T) {
		perms, err := calc.Calculate(ctx, anonymous, group.ScopeInsider)
		require.NoError(t, err)
		item, ok := perms.Item(group.ScopeInsider, "foo")
		require.True(t, ok)
		assert.Empty(t, item.Permissions)
		assert.False(t, item.Admin)
	})

	t.Run("admin role sets the admin flag", func(t *testing.T) {
		perms, err := calc.Calculate(ctx, carol, group.ScopeInsider)
		require.NoError(t, err)
		item, _ := perms.Item(group.ScopeInsider, "foo")
		assert.True(t, item.Admin)
		assert.Empty(t, item.Permissions)

		bar, _ := perms.Item(group.ScopeInsider, "bar")
		assert.False(t, bar.Admin)
	})

	t.Run("cache metadata", func(t *testing.T) {
		perms, err := calc.Calculate(ctx, alice, group.ScopeInsider)
		require.NoError(t, err)
		meta := perms.CacheMetadata()
		assert.Equal(t, []string{"config:group.role.foo-insider", group.GroupRoleListTag, group.GroupTypeListTag}, meta.Tags())
		assert.Empty(t, meta.Contexts())
		assert.Equal(t, cacheable.Permanent, meta.MaxAge())
	})

	t.Run("rejects the individual scope", func(t *testing.T) {
		_, err := calc.Calculate(ctx, alice, group.ScopeIndividual)
		assert.ErrorIs(t, err, ErrUnsupportedScope)
	})
}

func TestIndividualCalculator(t *testing.T) {
	ctx := context.Background()
	config, memberships := newFixture()
	calc := NewIndividualCalculator(config, memberships)

	perms, err := calc.Calculate(ctx, alice, group.ScopeIndividual)
	require.NoError(t, err)
	require.Equal(t, 2, perms.Len())

	one, _ := perms.Item(group.ScopeIndividual, "1")
	assert.Equal(t, []string{"edit group"}, one.Permissions)
	two, _ := perms.Item(group.ScopeIndividual, "2")
	assert.True(t, two.Admin, "insider roles on a membership are ignored, admin individual role applies")

	meta := perms.CacheMetadata()
	assert.True(t, meta.HasTag(group.EntityRelationshipListTag(group.MembershipPluginID, alice.ID)))
	assert.True(t, meta.HasTag("group_relationship:10"))
	assert.True(t, meta.HasTag("config:group.role.foo-member"))
	assert.True(t, meta.HasTag("config:group.role.foo-owner"))
	assert.False(t, meta.HasTag("config:group.role.foo-insider"))
	assert.False(t, meta.HasContext(cacheable.ContextUser))

	t.Run("membership without roles yields an empty item", func(t *testing.T) {
		perms, err := calc.Calculate(ctx, bob, group.ScopeIndividual)
		require.NoError(t, err)
		item, ok := perms.Item(group.ScopeIndividual, "1")
		require.True(t, ok)
		assert.Empty(t, item.Permissions)
	})

	t.Run("anonymous has no memberships", func(t *testing.T) {
		calls := memberships.calls.Load()
		perms, err := calc.Calculate(ctx, anonymous, group.ScopeIndividual)
		require.NoError(t, err)
		assert.Zero(t, perms.Len())
		assert.Equal(t, calls, memberships.calls.Load())
	})
}

func newTestChain(t *testing.T) (*Chain, *fakeConfig, *fakeMemberships, cache.Backend) {
	t.Helper()
	config, memberships := newFixture()
	backend, err := cache.NewMemoryBackend(nil)
	require.NoError(t, err)

	chain := NewChain([]Calculator{
		NewSynchronizedCalculator(config),
		NewIndividualCalculator(config, memberships),
	}, backend, nil, nil)
	return chain, config, memberships, backend
}

func TestChain_CalculateFullPermissions(t *testing.T) {
	ctx := context.Background()
	chain, config, _, _ := newTestChain(t)

	first, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	second, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	assert.True(t, first.Equal(second), "repeated calculations are equal")

	// outsider + insider per type, plus two memberships
	assert.Len(t, first.Items(), 2*len(config.types)+2)
	assert.Len(t, first.ItemsByScope(group.ScopeIndividual), 2)
}

func TestChain_PersistentCache(t *testing.T) {
	ctx := context.Background()
	chain, config, memberships, backend := newTestChain(t)

	_, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	typeCalls, membershipCalls := config.calls.Load(), memberships.calls.Load()

	// Same global roles share the synchronized entries, memberships are per user
	_, err = chain.CalculateFullPermissions(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, typeCalls, config.calls.Load())
	assert.Equal(t, membershipCalls+1, memberships.calls.Load())

	// Editing a role invalidates its tag and the next calculation sees the change
	config.role("foo-insider").GrantPermissions("edit group")
	require.NoError(t, backend.InvalidateTags(ctx, "config:group.role.foo-insider"))

	perms, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	item, _ := perms.Item(group.ScopeInsider, "foo")
	assert.True(t, item.HasPermission("edit group"))
	assert.Greater(t, config.calls.Load(), typeCalls)
}

// editingConfig serves a copy of the roles, then edits the original role and
// invalidates its tags before the calculation returns
type editingConfig struct {
	*fakeConfig
	edit func()
	done bool
}

func (c *editingConfig) ListRolesByScope(ctx context.Context, scope group.Scope) ([]*group.GroupRole, error) {
	roles, err := c.fakeConfig.ListRolesByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	snapshot := make([]*group.GroupRole, len(roles))
	for i, r := range roles {
		role := *r
		role.Permissions = append([]string(nil), r.Permissions...)
		snapshot[i] = &role
	}
	if scope == group.ScopeInsider && !c.done {
		c.done = true
		c.edit()
	}
	return snapshot, nil
}

func TestChain_InvalidationDuringCalculation(t *testing.T) {
	ctx := context.Background()
	config, _ := newFixture()
	backend, err := cache.NewMemoryBackend(nil)
	require.NoError(t, err)

	editing := &editingConfig{fakeConfig: config}
	editing.edit = func() {
		config.role("foo-insider").GrantPermissions("edit group")
		require.NoError(t, backend.InvalidateTags(ctx, "config:group.role.foo-insider", group.GroupRoleListTag))
	}
	chain := NewChain([]Calculator{NewSynchronizedCalculator(editing)}, backend, nil, nil)

	stale, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	item, _ := stale.Item(group.ScopeInsider, "foo")
	assert.False(t, item.HasPermission("edit group"), "the first calculation read the old role")

	perms, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	item, _ = perms.Item(group.ScopeInsider, "foo")
	assert.True(t, item.HasPermission("edit group"), "the stale result was not served from the cache")

	// Once nothing changes mid-calculation the result is cached again
	calls := config.calls.Load()
	_, err = chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, calls, config.calls.Load())
}

func TestChain_RequestScope(t *testing.T) {
	chain, config, memberships, backend := newTestChain(t)
	ctx := WithRequestScope(context.Background())
	assert.Equal(t, ctx, WithRequestScope(ctx))

	first, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	calls := memberships.calls.Load()

	second, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, memberships.calls.Load())

	// A tag invalidation during the request is honoured
	config.role("foo-member").GrantPermissions("delete group")
	require.NoError(t, backend.InvalidateTags(ctx, "config:group.role.foo-member"))

	third, err := chain.CalculateFullPermissions(ctx, alice)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	item, _ := third.Item(group.ScopeIndividual, "1")
	assert.True(t, item.HasPermission("delete group"))
}

func TestChain_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewChain(nil, nil, nil, nil).CalculateFullPermissions(ctx, alice)
	assert.ErrorIs(t, err, ErrNoCalculators)

	config, _ := newFixture()
	config.err = errors.New("database is gone")
	chain := NewChain([]Calculator{NewSynchronizedCalculator(config)}, nil, nil, nil)
	_, err = chain.CalculateFullPermissions(ctx, alice)
	assert.ErrorIs(t, err, config.err)

	_, err = chain.Calculate(ctx, alice, group.ScopeIndividual)
	assert.ErrorIs(t, err, ErrUnsupportedScope)
}

func TestChecker_HasPermissionInGroup(t *testing.T) {
	ctx := context.Background()
	chain, _, memberships, _ := newTestChain(t)
	checker := NewChecker(chain, memberships)

	foo1 := &group.Group{ID: 1, TypeID: "foo"}
	foo2 := &group.Group{ID: 2, TypeID: "foo"}
	foo3 := &group.Group{ID: 3, TypeID: "foo"}

	tests := []struct {
		name       string
		account    group.Account
		g          *group.Group
		permission string
		want       bool
	}{
		{"individual role", alice, foo1, "edit group", true},
		{"insider role for member", alice, foo1, "leave group", true},
		{"outsider role not applied to member", alice, foo1, "join group", false},
		{"individual admin", alice, foo2, "delete group", true},
		{"outsider role for non-member", alice, foo3, "join group", true},
		{"insider role not applied to non-member", alice, foo3, "leave group", false},
		{"anonymous outsider", anonymous, foo1, "view group", true},
		{"anonymous cannot join", anonymous, foo1, "join group", false},
		{"synchronized admin needs membership", carol, foo1, "delete group", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.HasPermissionInGroup(ctx, tt.permission, tt.account, tt.g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	member, err := checker.IsMember(ctx, bob, foo1)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestHashGenerator(t *testing.T) {
	ctx := context.Background()
	chain, config, _, backend := newTestChain(t)
	memo, err := cache.NewMemoryBackend(nil)
	require.NoError(t, err)

	gen := NewHashGenerator(chain, "salt", memo)

	h1, err := gen.GenerateHash(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := gen.GenerateHash(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other, err := NewHashGenerator(chain, "pepper", nil).GenerateHash(ctx, alice)
	require.NoError(t, err)
	assert.NotEqual(t, h1, other, "the salt is part of the hash input")

	hb, err := gen.GenerateHash(ctx, bob)
	require.NoError(t, err)
	assert.NotEqual(t, h1, hb)

	// Toggling admin changes the hash even though admin stores no permissions
	config.role("foo-member").Admin = true
	config.role("foo-member").Permissions = []string{}
	tag := "config:group.role.foo-member"
	require.NoError(t, backend.InvalidateTags(ctx, tag))
	require.NoError(t, memo.InvalidateTags(ctx, tag))

	h3, err := gen.GenerateHash(ctx, alice)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
