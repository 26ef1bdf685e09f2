// Package cache provides tag-aware cache backends for calculated permissions.
//
// Entries carry the cache tags of the data they hold. Invalidating a tag bumps
// a per-tag counter; an entry stays valid only while the sum of its tags'
// counters equals the checksum recorded when it was written. Writers therefore
// never touch cached entries directly and concurrent readers see either the old
// or the recomputed value.
package cache
