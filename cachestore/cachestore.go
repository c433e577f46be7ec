// Short-lived string caches. Used to remember classifier verdicts for
// recently-seen text so repeated submissions don't cost another API call.
package cachestore

import (
	"context"
)

type CacheStore interface {
	// ok is false on a miss, including an expired entry
	Get(ctx context.Context, key string) (val string, ok bool, err error)
	Set(ctx context.Context, key, val string) error
	Purge(ctx context.Context, key string) error
	Close() error
}
