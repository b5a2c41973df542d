package pagination

import (
	"sort"

	"github.com/samber/lo"
)

// Cache maps a listing's base URL to the container snippets known to hold
// its pagination. Entries are only ever added.
type Cache map[string]map[string]struct{}

func NewCache() Cache {
	return make(Cache)
}

// CacheFromLists builds a cache from its stored form.
func CacheFromLists(stored map[string][]string) Cache {
	c := NewCache()
	for base, snippets := range stored {
		for _, s := range snippets {
			c.Add(base, s)
		}
	}
	return c
}

func (c Cache) Add(baseURL, snippet string) {
	if c[baseURL] == nil {
		c[baseURL] = make(map[string]struct{})
	}
	c[baseURL][snippet] = struct{}{}
}

// Snippets returns the snippets of baseURL in a stable order.
func (c Cache) Snippets(baseURL string) []string {
	out := lo.Keys(c[baseURL])
	sort.Strings(out)
	return out
}

// Lists is the stored form of the cache.
func (c Cache) Lists() map[string][]string {
	out := make(map[string][]string, len(c))
	for base := range c {
		out[base] = c.Snippets(base)
	}
	return out
}
