package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bookmark is a named, persisted subset of flow ids, kept distinct from
// the per-flow Starred annotation per original_source/flow_monitor/bookmark.rs
// (a flow can be starred without belonging to any named bookmark, and vice
// versa).
type Bookmark struct {
	Name      string
	FlowIDs   []uuid.UUID
	CreatedAt time.Time
}

// BookmarkManager keeps a set of named Bookmarks independent of the Store
// they reference flows in.
type BookmarkManager struct {
	mu        sync.RWMutex
	bookmarks map[string]*Bookmark
}

// NewBookmarkManager creates an empty manager.
func NewBookmarkManager() *BookmarkManager {
	return &BookmarkManager{bookmarks: make(map[string]*Bookmark)}
}

// Bookmark adds id to the named bookmark, creating it if necessary.
func (m *BookmarkManager) Bookmark(name string, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookmarks[name]
	if !ok {
		b = &Bookmark{Name: name, CreatedAt: time.Now()}
		m.bookmarks[name] = b
	}
	for _, existing := range b.FlowIDs {
		if existing == id {
			return
		}
	}
	b.FlowIDs = append(b.FlowIDs, id)
}

// Unbookmark removes id from the named bookmark.
func (m *BookmarkManager) Unbookmark(name string, id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookmarks[name]
	if !ok {
		return
	}
	out := b.FlowIDs[:0]
	for _, existing := range b.FlowIDs {
		if existing != id {
			out = append(out, existing)
		}
	}
	b.FlowIDs = out
}

// Get returns a copy of the named bookmark.
func (m *BookmarkManager) Get(name string) (Bookmark, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookmarks[name]
	if !ok {
		return Bookmark{}, false
	}
	return *b, true
}

// List returns every bookmark's name.
func (m *BookmarkManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.bookmarks))
	for n := range m.bookmarks {
		names = append(names, n)
	}
	return names
}
