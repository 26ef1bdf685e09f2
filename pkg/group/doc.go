// Package group holds the vocabulary shared by the permission calculators, the
// access control engine and the query rewriters: permission scopes, accounts,
// group types, group roles, groups, relationships and relationship types.
//
// # Scopes
//
// Every calculated permission belongs to exactly one scope:
//
//	outsider    keyed by group type ID, applies to non-members
//	insider     keyed by group type ID, applies to members
//	individual  keyed by group ID, applies to one membership
//
// Outsider and insider roles are synchronized from global (platform-wide) roles.
// Individual roles are assigned directly on a membership.
//
// # Save-time invariants
//
// GroupType.Validate and GroupRole.Normalize enforce the configuration
// invariants the rest of the module relies on. Calculators and access checks
// never re-validate them.
package group
