package ledger

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key and forgets keys nobody holds.
type keyLocks struct {
	m *xsync.MapOf[string, *lockEntry]
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: xsync.NewMapOf[string, *lockEntry]()}
}

// lock acquires every key in sorted order and returns the release func.
func (l *keyLocks) lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = compact(sorted)

	held := make([]*lockEntry, 0, len(sorted))
	for _, k := range sorted {
		e, _ := l.m.Compute(k, func(old *lockEntry, loaded bool) (*lockEntry, bool) {
			if !loaded {
				old = &lockEntry{}
			}
			old.refs++
			return old, false
		})
		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.m.Compute(sorted[i], func(old *lockEntry, loaded bool) (*lockEntry, bool) {
				if !loaded {
					return old, true
				}
				old.refs--
				return old, old.refs <= 0
			})
		}
	}
}

// size returns the number of keys currently tracked.
func (l *keyLocks) size() int {
	return l.m.Size()
}

func compact(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
