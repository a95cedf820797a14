package dbengine

import (
	"container/list"

	"github.com/govindnetworks/siodb/metrics"
)

type cacheEntry struct {
	id  uint64
	obj interface{}
}

// objectCache is a bounded LRU mapping object id to a loaded object. The
// cache is the eviction-authoritative holder: dropping an entry only drops
// the cache's reference, current users keep the object alive.
// Not safe for concurrent use; callers hold the owning mutex.
type objectCache struct {
	kind     string
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

func newObjectCache(kind string, capacity int) *objectCache {
	return &objectCache{
		kind:     kind,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element, capacity),
	}
}

// get returns the cached object and refreshes its recency.
func (c *objectCache) get(id uint64) (interface{}, bool) {
	el, ok := c.items[id]
	if !ok {
		metrics.CacheMisses.WithLabelValues(c.kind).Inc()
		return nil, false
	}
	c.ll.MoveToFront(el)
	metrics.CacheHits.WithLabelValues(c.kind).Inc()
	return el.Value.(*cacheEntry).obj, true
}

// emplace inserts an object, evicting the least recently used entry when the
// cache is at capacity.
func (c *objectCache) emplace(id uint64, obj interface{}) {
	if el, ok := c.items[id]; ok {
		el.Value.(*cacheEntry).obj = obj
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*cacheEntry).id)
			metrics.CacheEvictions.WithLabelValues(c.kind).Inc()
		}
	}
	c.items[id] = c.ll.PushFront(&cacheEntry{id: id, obj: obj})
}

func (c *objectCache) erase(id uint64) {
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
}

func (c *objectCache) len() int {
	return c.ll.Len()
}
