// Package storage persists group types, roles, relationship types, groups,
// relationships and config wrappers in a SQL database.
//
// The same hand-written SQL runs on PostgreSQL (lib/pq) and SQLite
// (mattn/go-sqlite3); only the auto-increment primary key differs between the
// two dialects. Writes that span several statements run in one transaction and
// publish their events only after it committed.
//
// # Tables
//
//	group_types                     group bundles
//	group_roles                     roles, permissions stored as a JSON array
//	group_relationship_types        plugins installed on group types
//	groups_field_data               groups
//	group_relationship_field_data   relationships, plugin_id and group_type denormalized from the bundle
//	group_relationship_roles        role assignments of memberships
//	group_config_wrapper            config entities wrapped for relationships, unique per (bundle, entity_id)
//
// Store satisfies the loader interfaces of the permissions package and the
// relationship lookups of the access package.
package storage
