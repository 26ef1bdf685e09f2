// Package relation holds the relation plugin registry.
//
// A relation plugin describes how one entity type (optionally one bundle of it)
// can be related to groups. Plugins are plain Definition values registered by
// ID; handlers for a plugin are built from a default implementation wrapped by
// the decorators registered for the (handler kind, plugin ID) pair. Derivative
// plugins such as node_relation:page also receive the decorators of their base
// plugin node_relation.
//
// Definitions and entity type descriptors are loaded from YAML manifests with
// LoadDir. WatchDir keeps watching the directory and registers plugins from
// manifests written later; registered plugins are never replaced.
package relation
