package cache

import (
	"time"

	"github.com/karlseguin/ccache/v3"
)

var DefaultMediaIDTTL = 1 * time.Hour

type Cache struct {
	MediaIDs MediaIDsCache
}

func New() *Cache {
	mediaIDsCache := ccache.New(
		ccache.Configure[string]().
			MaxSize(5000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Cache{
		MediaIDs: MediaIDsCache{c: mediaIDsCache},
	}
}

// MediaIDsCache maps a song mid to its media mid. Failed fetches are not
// stored. Concurrent fetches of one key are coalesced by the resolver, so
// unrelated songs never wait on each other here.
type MediaIDsCache struct {
	c *ccache.Cache[string]
}

func (c *MediaIDsCache) Fetch(k string, ttl time.Duration, fetch func() (string, error)) (*ccache.Item[string], error) {
	return c.c.Fetch(k, ttl, fetch)
}

// Delete evicts a media mid that led to no playable URL, so the next
// resolve looks it up again.
func (c *MediaIDsCache) Delete(k string) bool {
	return c.c.Delete(k)
}

func (c *MediaIDsCache) Stop() {
	c.c.Stop()
}
