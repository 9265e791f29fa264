// ABOUTME: Thread-safe TTL cache of claimed submission keys
// ABOUTME: Bounded in size with oldest-first eviction and a background sweeper

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// SubmissionKey scopes a client-chosen message ID to its session.
// "|" cannot appear in the UUID session IDs.
func SubmissionKey(sessionID, clientMessageID string) string {
	return sessionID + "|" + clientMessageID
}

type claim struct {
	key     string
	expires time.Time
}

// Cache tracks claimed keys until they expire.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*list.Element // value is *claim
	order   *list.List               // oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache. A background goroutine sweeps expired claims every
// minute until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Claim records key and reports true if it was not already claimed.
// Check and record happen under one lock.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.claims[key]; ok {
		cl := elem.Value.(*claim)
		if now.Before(cl.expires) {
			return false
		}
		// Expired: renew in place at the back.
		cl.expires = now.Add(c.ttl)
		c.order.MoveToBack(elem)
		return true
	}

	for len(c.claims) >= c.maxSize {
		c.evictOldest()
	}
	c.claims[key] = c.order.PushBack(&claim{key: key, expires: now.Add(c.ttl)})
	return true
}

// Release drops a claim so the key may be claimed again.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.claims[key]; ok {
		c.order.Remove(elem)
		delete(c.claims, key)
	}
}

// Len returns the number of stored claims, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.claims, front.Value.(*claim).key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims. Claims are renewed by moving them to the
// back, so expiry times are not ordered and the whole list is walked.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		cl := elem.Value.(*claim)
		if !now.Before(cl.expires) {
			c.order.Remove(elem)
			delete(c.claims, cl.key)
		}
		elem = next
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
