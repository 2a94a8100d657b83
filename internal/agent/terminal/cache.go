package terminal

import "container/list"

// releasedOutput is the final snapshot of a released terminal, retained
// best-effort so a UI can still show results after teardown.
type releasedOutput struct {
	Output    string
	Truncated bool
	ExitCode  *int
	Signal    *string
}

// releaseCache is a small LRU of released-terminal outputs, oldest evicted
// first. It is not authoritative; an entry may be absent.
type releaseCache struct {
	capacity int
	order    *list.List // front = most recent
	entries  map[string]*list.Element
}

type cacheEntry struct {
	id  string
	out releasedOutput
}

func newReleaseCache(capacity int) *releaseCache {
	return &releaseCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Put stores the snapshot for id, evicting the oldest entry past capacity.
func (c *releaseCache) Put(id string, out releasedOutput) {
	if el, ok := c.entries[id]; ok {
		el.Value.(*cacheEntry).out = out
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{id: id, out: out})
	c.entries[id] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).id)
	}
}

// Get returns the snapshot for id, refreshing its recency.
func (c *releaseCache) Get(id string) (releasedOutput, bool) {
	el, ok := c.entries[id]
	if !ok {
		return releasedOutput{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).out, true
}

// Contains reports whether id is cached without refreshing recency.
func (c *releaseCache) Contains(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of cached entries.
func (c *releaseCache) Len() int {
	return c.order.Len()
}
