package relation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
entity_types:
  - id: node
    label: Content
    owner: true
    publishable: true
    table: node_field_data
    id_column: nid
    owner_column: uid
    status_column: status
  - id: node_type
    label: Content type
    config: true
plugins:
  - id: node_relation:page
    label: Group node (Basic page)
    entity_type: node
    entity_bundle: page
    admin_permission: administer node_relation:page
    entity_access: true
  - id: node_type_relation
    label: Group content type
    entity_type: node_type
    admin_permission: administer node_type_relation
    entity_access: true
`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := NewRegistry(log)
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	require.NoError(t, r.Apply(m))
	return r
}

func TestRegistry_Definitions(t *testing.T) {
	r := newTestRegistry(t)

	ids := make([]string, 0)
	for _, def := range r.Definitions() {
		ids = append(ids, def.ID)
	}
	assert.Equal(t, []string{group.MembershipPluginID, "node_relation:page", "node_type_relation"}, ids)
	assert.Equal(t, []string{"node_relation:page"}, r.PluginIDsForEntityType("node"))
	assert.Equal(t, []string{group.MembershipPluginID}, r.PluginIDsForEntityType("user"))
	assert.Empty(t, r.PluginIDsByEntityTypeAccess("user"), "memberships do not define access to users")
	assert.Equal(t, []string{"node_relation:page"}, r.PluginIDsByEntityTypeAccess("node"))

	def, err := r.Definition("node_relation:page")
	require.NoError(t, err)
	assert.Equal(t, "node_relation", def.BaseID())
	assert.Equal(t, "page", def.DerivativeID())

	_, err = r.Definition("missing")
	assert.ErrorIs(t, err, ErrUnknownPlugin)

	err = r.Register(Definition{ID: "node_relation:page", EntityTypeID: "node"})
	assert.ErrorIs(t, err, ErrDuplicatePlugin)

	err = r.Register(Definition{ID: "media_relation", EntityTypeID: "media"})
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	et, err := r.EntityType("node_type")
	require.NoError(t, err)
	assert.Equal(t, "node_type", et.Table)
	assert.Equal(t, "id", et.IDColumn)
}

func TestDefaultPermissionProvider(t *testing.T) {
	r := newTestRegistry(t)
	p, err := r.PermissionProvider("node_relation:page")
	require.NoError(t, err)

	tests := []struct {
		op     Operation
		target Target
		scope  OwnerScope
		want   string
	}{
		{OperationView, TargetRelationship, Any, "view node_relation:page relationship"},
		{OperationView, TargetRelationship, Own, ""},
		{OperationUpdate, TargetRelationship, Own, "update own node_relation:page relationship"},
		{OperationDelete, TargetRelationship, Any, "delete any node_relation:page relationship"},
		{OperationCreate, TargetRelationship, Any, "create node_relation:page relationship"},
		{OperationView, TargetEntity, Any, "view node_relation:page entity"},
		{OperationView, TargetEntity, Own, ""},
		{OperationViewUnpublished, TargetEntity, Own, "view own unpublished node_relation:page entity"},
		{OperationUpdate, TargetEntity, Any, "update any node_relation:page entity"},
		{OperationDelete, TargetEntity, Own, "delete own node_relation:page entity"},
		{OperationCreate, TargetEntity, Any, "create node_relation:page entity"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Permission(tt.op, tt.target, tt.scope), "%s %s %s", tt.op, tt.target, tt.scope)
	}
	assert.Equal(t, "administer node_relation:page", p.AdminPermission())

	// Config entities have neither owners nor a published flag
	cp, err := r.PermissionProvider("node_type_relation")
	require.NoError(t, err)
	assert.Equal(t, "", cp.Permission(OperationViewUnpublished, TargetEntity, Any))
	assert.Equal(t, "", cp.Permission(OperationUpdate, TargetEntity, Own))
	assert.Equal(t, "update any node_type_relation entity", cp.Permission(OperationUpdate, TargetEntity, Any))
}

func TestMembershipPermissionProvider(t *testing.T) {
	r := newTestRegistry(t)
	p, err := r.PermissionProvider(group.MembershipPluginID)
	require.NoError(t, err)

	assert.Equal(t, "", p.Permission(OperationCreate, TargetRelationship, Any))
	assert.Equal(t, PermissionLeaveGroup, p.Permission(OperationDelete, TargetRelationship, Own))
	assert.Equal(t, "", p.Permission(OperationDelete, TargetRelationship, Any))
	assert.Equal(t, "", p.Permission(OperationUpdate, TargetRelationship, Any))
	assert.Equal(t, "update own group_membership relationship", p.Permission(OperationUpdate, TargetRelationship, Own))
	assert.Equal(t, "", p.Permission(OperationView, TargetEntity, Any))
	assert.Equal(t, PermissionAdministerMember, p.AdminPermission())

	names := make([]string, 0)
	for _, perm := range p.Permissions() {
		names = append(names, perm.Name)
	}
	assert.Contains(t, names, PermissionJoinGroup)
	assert.Contains(t, names, PermissionLeaveGroup)
	assert.NotContains(t, names, "create group_membership relationship")
}

type labelled interface {
	Label() string
}

type stringLabel string

func (s stringLabel) Label() string { return string(s) }

type suffixLabel struct {
	inner  labelled
	suffix string
}

func (s suffixLabel) Label() string { return s.inner.Label() + s.suffix }

func TestBuild_DecoratorChain(t *testing.T) {
	r := newTestRegistry(t)
	def, err := r.Definition("node_relation:page")
	require.NoError(t, err)

	Decorate[labelled](r, KindAccessControl, "node_relation:page", func(_ Definition, inner labelled) labelled {
		return suffixLabel{inner: inner, suffix: "+page"}
	})
	Decorate[labelled](r, KindAccessControl, "node_relation", func(_ Definition, inner labelled) labelled {
		return suffixLabel{inner: inner, suffix: "+base"}
	})
	// Wrong handler type for the kind is skipped
	Decorate[PermissionProvider](r, KindAccessControl, "node_relation:page", decorateMembershipPermissions)

	got := Build[labelled](r, KindAccessControl, def, stringLabel("default"))
	assert.Equal(t, "default+base+page", got.Label())

	other, err := r.Definition("node_type_relation")
	require.NoError(t, err)
	assert.Equal(t, "default", Build[labelled](r, KindAccessControl, other, stringLabel("default")).Label())
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.yaml"), []byte(testManifest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("plugins: [\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r := NewRegistry(log)

	loaded, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.True(t, r.Has("node_type_relation"))

	loaded, err = r.LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestRegistry_Permissions(t *testing.T) {
	r := newTestRegistry(t)
	perms, err := r.Permissions()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, p := range perms {
		names[p.Name] = true
	}
	assert.True(t, names[PermissionViewGroup])
	assert.True(t, names["administer node_relation:page"])
	assert.True(t, names["view own unpublished node_relation:page entity"])
}

func TestRegistry_WatchDir(t *testing.T) {
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r := NewRegistry(log)

	w, err := r.WatchDir(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.yaml"), []byte(testManifest), 0644))
	assert.Eventually(t, func() bool {
		return r.Has("node_relation:page") && r.Has("node_type_relation")
	}, 5*time.Second, 20*time.Millisecond)

	et, err := r.EntityType("node")
	require.NoError(t, err)
	assert.Equal(t, "node_field_data", et.Table)

	// Rewriting the manifest keeps registered plugins and adds new ones
	more := testManifest + `
  - id: node_relation:article
    label: Group node (Article)
    entity_type: node
    entity_bundle: article
    entity_access: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.yaml"), []byte(more), 0644))
	assert.Eventually(t, func() bool { return r.Has("node_relation:article") }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestRegistry_WatchDirMissing(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.WatchDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
