package service

import (
	"fmt"
	"sync"
)

// conversationLocks serializes ingestion per (channel, external conversation
// id) so that concurrent first messages for the same thread cannot race each
// other between the lookup and the insert. The database unique constraint is
// the final arbiter; the lock keeps the common path free of conflict
// round-trips.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{
		locks: make(map[string]*lockEntry),
	}
}

func conversationKey(channelID int64, externalID string) string {
	return fmt.Sprintf("%d:%s", channelID, externalID)
}

// acquire blocks until the lock for key is held and returns the release
// function. Entries are reference counted and removed once unused so the
// map does not grow with conversation cardinality.
func (c *conversationLocks) acquire(key string) func() {
	c.mu.Lock()
	entry, ok := c.locks[key]
	if !ok {
		entry = &lockEntry{}
		c.locks[key] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
