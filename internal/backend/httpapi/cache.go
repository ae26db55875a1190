package httpapi

import (
	"sync"

	"github.com/parleyhq/parley/internal/backend"
)

// liveCache holds the latest server-confirmed page per query key plus the
// current view, which may include an uncommitted optimistic patch. Optimistic
// updates write the view only; the confirmed copy is what a rollback
// restores.
type liveCache struct {
	mu        sync.Mutex
	confirmed map[string]backend.MessagePage
	view      map[string]backend.MessagePage
	subs      map[string]map[chan backend.Snapshot]backend.ListMessagesArgs
}

func newLiveCache() *liveCache {
	return &liveCache{
		confirmed: make(map[string]backend.MessagePage),
		view:      make(map[string]backend.MessagePage),
		subs:      make(map[string]map[chan backend.Snapshot]backend.ListMessagesArgs),
	}
}

// patchView is the backend.QueryCache the optimistic updates run against. It
// records which keys were written so a failed mutation can roll them back.
type patchView struct {
	cache   *liveCache
	written []string
}

func (p *patchView) Read(key string) (backend.MessagePage, bool) {
	p.cache.mu.Lock()
	defer p.cache.mu.Unlock()
	page, ok := p.cache.view[key]
	return page, ok
}

func (p *patchView) Write(key string, page backend.MessagePage) {
	p.cache.mu.Lock()
	p.cache.view[key] = page
	p.cache.mu.Unlock()
	p.written = append(p.written, key)
}

// applyPatch runs an optimistic update against the view and fans the patched
// pages out to subscribers. It returns the written keys for rollback.
func (c *liveCache) applyPatch(update backend.CacheUpdate) []string {
	pv := &patchView{cache: c}
	update(pv)
	for _, key := range pv.written {
		c.fanOut(key)
	}
	return pv.written
}

// rollback restores a key's view to the last confirmed page and re-delivers
// it.
func (c *liveCache) rollback(key string) {
	c.mu.Lock()
	if page, ok := c.confirmed[key]; ok {
		c.view[key] = page
	} else {
		delete(c.view, key)
	}
	c.mu.Unlock()
	c.fanOut(key)
}

// confirm installs a server snapshot as both confirmed state and view, then
// fans it out.
func (c *liveCache) confirm(key string, page backend.MessagePage) {
	c.mu.Lock()
	c.confirmed[key] = page
	c.view[key] = page
	c.mu.Unlock()
	c.fanOut(key)
}

func (c *liveCache) fanOut(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.view[key]
	if !ok {
		return
	}
	for ch, args := range c.subs[key] {
		select {
		case ch <- backend.Snapshot{Args: args, Page: page}:
		default:
			// Subscriber lagging; it will catch up on the next delivery.
		}
	}
}

func (c *liveCache) subscribe(args backend.ListMessagesArgs) chan backend.Snapshot {
	ch := make(chan backend.Snapshot, 16)
	key := args.Key()
	c.mu.Lock()
	if c.subs[key] == nil {
		c.subs[key] = make(map[chan backend.Snapshot]backend.ListMessagesArgs)
	}
	c.subs[key][ch] = args
	// Replay the current view so late subscribers start from known state.
	page, ok := c.view[key]
	c.mu.Unlock()
	if ok {
		ch <- backend.Snapshot{Args: args, Page: page}
	}
	return ch
}

func (c *liveCache) unsubscribe(args backend.ListMessagesArgs, ch chan backend.Snapshot) {
	key := args.Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.subs[key]; ok {
		if _, ok := m[ch]; ok {
			delete(m, ch)
			close(ch)
		}
		if len(m) == 0 {
			delete(c.subs, key)
		}
	}
}
