package cacheable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMaxAges(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want int
	}{
		{name: "both permanent", a: Permanent, b: Permanent, want: Permanent},
		{name: "permanent and finite", a: Permanent, b: 60, want: 60},
		{name: "finite and permanent", a: 30, b: Permanent, want: 30},
		{name: "smaller wins", a: 30, b: 60, want: 30},
		{name: "zero wins", a: 0, b: 60, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeMaxAges(tt.a, tt.b))
		})
	}
}

func TestMetadata_Merge(t *testing.T) {
	a := New().AddTags("config:group.role.foo-member", "config:group_role_list").AddContexts(ContextUser)
	b := New().AddTags("config:group_role_list", "group:1").WithMaxAge(300)

	merged := a.Merge(b)

	assert.Equal(t, []string{"config:group.role.foo-member", "config:group_role_list", "group:1"}, merged.Tags())
	assert.Equal(t, []string{ContextUser}, merged.Contexts())
	assert.Equal(t, 300, merged.MaxAge())

	// Merging is order independent
	assert.True(t, merged.Equal(b.Merge(a)))
}

func TestMetadata_CopyOnWrite(t *testing.T) {
	base := New().AddTags("a")
	derived := base.AddTags("b")

	assert.Equal(t, []string{"a"}, base.Tags())
	assert.Equal(t, []string{"a", "b"}, derived.Tags())
	assert.False(t, base.Equal(derived))
}

func TestMetadata_ZeroValue(t *testing.T) {
	var m Metadata
	assert.Empty(t, m.Tags())
	assert.Empty(t, m.Contexts())
	assert.False(t, m.HasContext(ContextUser))
	assert.Equal(t, Permanent, m.MaxAge())
	assert.True(t, m.Equal(New()))
}

func TestMetadata_JSONRoundTrip(t *testing.T) {
	in := New().AddTags("group:1").AddContexts(ContextGroupPermissions).WithMaxAge(120)

	data, err := in.MarshalJSON()
	assert.NoError(t, err)

	var out Metadata
	assert.NoError(t, out.UnmarshalJSON(data))
	assert.True(t, in.Equal(out))
}
