// Package cache keeps downloaded assets (catalog responses, timing files and
// recitation audio) in a bounded in-memory LRU backed by a zstd-compressed
// disk store, so the reader keeps working offline once a surah was fetched.
package cache
