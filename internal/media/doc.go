// Package media renders and caches image thumbnails.
//
// A thumbnail is keyed by the content identity of its source: resolved path,
// size and modification time. Artifacts are PNG files under the cache
// directory, sharded by the first two characters of the key and written
// atomically. Concurrent requests for one key share a single generation.
// Sources that cannot be decoded yield a placeholder reference.
package media
