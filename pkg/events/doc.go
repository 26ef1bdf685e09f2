// Package events carries post-commit notifications from storage to whoever
// needs to react to them: cache tag invalidation, the per (user, group) role
// cache and refreshes of entities that were added to or removed from a group.
//
// Publishing is synchronous. Every handler sees every event and a failing
// handler does not stop the others; their errors are joined and returned to
// the publisher after the write already committed.
package events
