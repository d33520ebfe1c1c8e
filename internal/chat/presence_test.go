package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct{ id string }

func (f *fakeConn) Enqueue(data []byte) bool { return true }

func TestPresenceRegisterLookup(t *testing.T) {
	p := NewPresence()
	conn := &fakeConn{id: "c1"}
	p.Register("u1", "Grace", conn)

	entry, ok := p.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "Grace", entry.UserName)
	assert.Same(t, conn, entry.Conn.(*fakeConn))

	_, ok = p.Lookup("u2")
	assert.False(t, ok)
}

func TestPresenceLastConnectWins(t *testing.T) {
	p := NewPresence()
	first := &fakeConn{id: "c1"}
	second := &fakeConn{id: "c2"}
	p.Register("u1", "Grace", first)
	p.Register("u1", "Grace", second)

	entry, ok := p.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, entry.Conn.(*fakeConn))
	assert.Equal(t, 1, p.Count())
}

func TestPresenceUnregister(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "Grace", &fakeConn{})
	p.Unregister("u1")
	_, ok := p.Lookup("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, p.Count())
}

func TestPresenceListIsSnapshot(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "Grace", &fakeConn{})
	p.Register("u2", "Sam", &fakeConn{})

	list := p.List()
	require.Len(t, list, 2)

	// Mutating the registry after the fact must not affect the snapshot.
	p.Unregister("u1")
	assert.Len(t, list, 2)
}

func TestPresenceTouch(t *testing.T) {
	p := NewPresence()
	p.Register("u1", "Grace", &fakeConn{})
	before, ok := p.Lookup("u1")
	require.True(t, ok)

	ts, ok := p.Touch("u1")
	require.True(t, ok)
	assert.False(t, ts.Before(before.LastActivity))

	_, ok = p.Touch("missing")
	assert.False(t, ok)
}

func TestPresenceConcurrentAccess(t *testing.T) {
	p := NewPresence()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			p.Register(id, "user-"+id, &fakeConn{})
			p.List()
			p.Touch(id)
			p.Unregister(id)
		}(i)
	}
	wg.Wait()
}
