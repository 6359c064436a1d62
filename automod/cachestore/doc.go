// Time-windowed key/value storage for the moderation engine.
//
// Values are opaque strings (usually JSON) kept for a bounded TTL and purged explicitly when the underlying state changes. The engine uses this for per-channel cooldown lookups and for suppressing repeated deliveries of the same cast.
//
// Includes an interface and implementations using redis and in-process memory.
package cachestore
