package chat

import (
	"sync"
	"time"
)

// DefaultTypingTTL is the quiescence window after which a typing entry
// auto-expires if no renewed signal arrives.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	room   string
	userID string
}

type typingEntry struct {
	userName string
	timer    *time.Timer
	// gen identifies the timer that currently owns the entry, so an
	// expiry callback that already fired, but lost the race for the lock
	// against a renewal or a restart, can tell it no longer does.
	gen uint64
}

// TypingNotifier receives the "stopped typing" signal whenever an entry is
// removed, whether by explicit stop, expiry, room leave or disconnect.
type TypingNotifier func(room, userID string)

// Typing tracks which users are currently composing in which room. Entries
// expire after the TTL unless renewed; every removal notifies exactly once.
type Typing struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry
	gen     uint64
	ttl     time.Duration
	onStop  TypingNotifier
}

func NewTyping(ttl time.Duration, onStop TypingNotifier) *Typing {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Typing{
		entries: make(map[typingKey]*typingEntry),
		ttl:     ttl,
		onStop:  onStop,
	}
}

// Start marks the user as typing in room and (re)arms the expiry timer.
// It returns true only for a fresh entry, so the caller can suppress
// duplicate "typing" notifications.
func (t *Typing) Start(room, userID, userName string) bool {
	key := typingKey{room: room, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if entry, ok := t.entries[key]; ok {
		// Renewed activity: replace the pending timer. Stop may return
		// false when the old timer already fired and its callback is
		// waiting on the lock; the fresh generation makes that callback
		// a no-op.
		entry.timer.Stop()
		entry.gen = t.gen
		entry.timer = t.expiryTimer(key, entry.gen)
		return false
	}
	entry := &typingEntry{userName: userName, gen: t.gen}
	entry.timer = t.expiryTimer(key, entry.gen)
	t.entries[key] = entry
	return true
}

// Stop removes the entry immediately and cancels its timer. It returns true
// if an entry was present; the stopped-typing notification fires via onStop.
func (t *Typing) Stop(room, userID string) bool {
	key := typingKey{room: room, userID: userID}
	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()
	if ok && t.onStop != nil {
		t.onStop(room, userID)
	}
	return ok
}

// ClearUser removes the user's typing entries across all rooms, as on
// disconnect. Each cleared room gets a stopped-typing notification.
func (t *Typing) ClearUser(userID string) []string {
	t.mu.Lock()
	rooms := make([]string, 0)
	for key, entry := range t.entries {
		if key.userID == userID {
			entry.timer.Stop()
			delete(t.entries, key)
			rooms = append(rooms, key.room)
		}
	}
	t.mu.Unlock()
	if t.onStop != nil {
		for _, room := range rooms {
			t.onStop(room, userID)
		}
	}
	return rooms
}

// IsTyping reports whether the user currently has a typing entry in room.
func (t *Typing) IsTyping(room, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{room: room, userID: userID}]
	return ok
}

func (t *Typing) expiryTimer(key typingKey, gen uint64) *time.Timer {
	return time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		entry, ok := t.entries[key]
		expired := ok && entry.gen == gen
		if expired {
			delete(t.entries, key)
		}
		t.mu.Unlock()
		if expired && t.onStop != nil {
			t.onStop(key.room, key.userID)
		}
	})
}
