package chat

import (
	"sync"
	"time"

	"fellowship-chat/internal/models"
)

// Conn is the handle the presence registry keeps per connected user, used to
// push events directly to one connection (e.g. private-chat-started).
type Conn interface {
	Enqueue(data []byte) bool
}

type PresenceEntry struct {
	UserID       string
	UserName     string
	Conn         Conn
	LastActivity time.Time
}

// Presence tracks which identities are currently connected. It is owned by
// the websocket hub; all operations are in-memory and mutex-serialized.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*PresenceEntry
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*PresenceEntry)}
}

// Register inserts or overwrites the entry for userID. A second connection
// from the same identity wins over the first one.
func (p *Presence) Register(userID, userName string, conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[userID] = &PresenceEntry{
		UserID:       userID,
		UserName:     userName,
		Conn:         conn,
		LastActivity: time.Now(),
	}
}

func (p *Presence) Unregister(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, userID)
}

// Touch updates the last-activity timestamp, returning false if the user is
// not connected.
func (p *Presence) Touch(userID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	entry.LastActivity = time.Now()
	return entry.LastActivity, true
}

func (p *Presence) Lookup(userID string) (*PresenceEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[userID]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// List returns a point-in-time snapshot, not a live view.
func (p *Presence) List() []models.OnlineUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]models.OnlineUser, 0, len(p.entries))
	for _, entry := range p.entries {
		users = append(users, models.OnlineUser{
			UserID:       entry.UserID,
			UserName:     entry.UserName,
			LastActivity: entry.LastActivity,
			IsOnline:     true,
		})
	}
	return users
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
