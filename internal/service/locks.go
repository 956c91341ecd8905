package service

import (
	"sort"
	"sync"
)

// accountLocks hands out one mutex per username. Entries are never removed:
// users are never deleted once registered, so the map is bounded by the user count.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) get(username string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[username]
	if !ok {
		m = &sync.Mutex{}
		l.locks[username] = m
	}
	return m
}

// lock acquires the locks of all given usernames in lexicographic order, so
// two transfers running in opposite directions cannot deadlock.
func (l *accountLocks) lock(usernames ...string) (unlock func()) {
	names := make([]string, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for _, name := range usernames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	held := make([]*sync.Mutex, 0, len(names))
	for _, name := range names {
		m := l.get(name)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
