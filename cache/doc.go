// Package cache implements the two-tier media cache store.
//
// # Memory Tier
//
// A strict LRU over a map and an intrusive list, bounded by a byte budget AND
// an item budget; whichever limit is reached first triggers eviction before a
// new entry is admitted. Eviction removes one entry at a time, least recently
// used first, breaking last-access ties by lower access count.
//
// # Persistent Tier
//
// An optional kvstore.Store acts as an overflow/durability extension of the
// memory tier, never an independent source of truth. Only raw-byte payloads
// below a size ceiling are mirrored (decoded handles cannot be serialized
// generically). Writes are asynchronous and best-effort: failures are logged
// and swallowed. A record found there on a memory miss is promoted back into
// memory before being returned.
//
// The persistent tier is budget-bounded too: CleanupSweep deletes the oldest
// records via the store's timestamp index until the tier fits its budget, and
// runs opportunistically after background writes.
package cache
