// Package permissions calculates the group permissions of an account.
//
// Three calculations feed one result:
//
//	Synchronized(outsider)  group type -> permissions of outsider roles matching the account's global roles
//	Synchronized(insider)   group type -> permissions of insider roles matching the account's global roles
//	Individual              group      -> permissions of the individual roles on the account's memberships
//
// The Chain runs them, merges the items keyed by (scope, identifier) and caches
// the outcome per request and in a tag-aware cache backend. The Checker answers
// single permission questions on top of the merged result and the HashGenerator
// turns it into a stable hash.
//
// A CalculatedPermissions value is immutable once returned by a calculator or
// the chain; merging always produces a new value.
package permissions
