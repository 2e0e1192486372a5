// Package cache implements the persistent processing cache keyed by source
// path and processing parameters. Entries carry a content fingerprint of the
// source and the path of the produced output, so a lookup only hits when the
// source is unchanged and the output is still on disk. Every fault in the
// cache itself degrades to a miss or a no-op; the cache can slow the
// pipeline down but never break it.
package cache
