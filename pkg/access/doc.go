// Package access decides whether an account may act on relationships, grouped
// entities and groups.
//
// Every relation plugin gets a Handler that maps an operation onto the admin,
// "any" and "own" permissions of its permission provider and checks them
// against the account's calculated group permissions. The Engine combines the
// handlers of all plugins relating an entity type: one granting plugin allows,
// otherwise one refusing plugin forbids, otherwise the engine stays neutral.
//
// Entities that are not related to any group are none of this package's
// business and always yield a neutral result.
//
// Each Result carries the cacheability of the decision, see package cacheable.
package access
