package repository

import (
	"math/rand/v2"

	"github.com/okian/zen/internal/domain/model"
)

// Treap-backed ranking used by the in-memory store.
//
// Members are ordered by value DESC then user ID ASC so in-order traversal
// yields the leaderboard from best to worst. A second treap holds the distinct
// values, which turns dense rank into an order-statistic query.

type treapNode[K any] struct {
	key   K
	prio  uint64
	left  *treapNode[K]
	right *treapNode[K]
	size  int
}

type treap[K any] struct {
	root *treapNode[K]
	less func(a, b K) bool
}

func nsize[K any](n *treapNode[K]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix[K any](n *treapNode[K]) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight[K any](y *treapNode[K]) *treapNode[K] {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft[K any](x *treapNode[K]) *treapNode[K] {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func (t *treap[K]) insert(key K) {
	t.root = t.insertAt(t.root, key)
}

func (t *treap[K]) insertAt(n *treapNode[K], key K) *treapNode[K] {
	if n == nil {
		return &treapNode[K]{key: key, prio: rand.Uint64(), size: 1}
	}
	if t.less(key, n.key) {
		n.left = t.insertAt(n.left, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = t.insertAt(n.right, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func (t *treap[K]) delete(key K) {
	t.root = t.deleteAt(t.root, key)
}

func (t *treap[K]) deleteAt(n *treapNode[K], key K) *treapNode[K] {
	if n == nil {
		return nil
	}
	switch {
	case t.less(key, n.key):
		n.left = t.deleteAt(n.left, key)
	case t.less(n.key, key):
		n.right = t.deleteAt(n.right, key)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = t.deleteAt(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = t.deleteAt(n.left, key)
		}
	}
	fix(n)
	return n
}

// countBefore returns how many keys order strictly before key.
func (t *treap[K]) countBefore(key K) int {
	count := 0
	for n := t.root; n != nil; {
		if t.less(n.key, key) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// walk visits keys in order until fn returns false.
func (t *treap[K]) walk(fn func(K) bool) {
	var visit func(n *treapNode[K]) bool
	visit = func(n *treapNode[K]) bool {
		if n == nil {
			return true
		}
		return visit(n.left) && fn(n.key) && visit(n.right)
	}
	visit(t.root)
}

func (t *treap[K]) len() int {
	return nsize(t.root)
}

type standing struct {
	value int64
	id    string
}

// board is one server's leaderboard for one ledger.
type board struct {
	members  treap[standing]
	values   treap[int64]
	valueRef map[int64]int
	byID     map[string]int64
}

func newBoard() *board {
	return &board{
		members: treap[standing]{less: func(a, b standing) bool {
			if a.value != b.value {
				return a.value > b.value
			}
			return a.id < b.id
		}},
		values:   treap[int64]{less: func(a, b int64) bool { return a > b }},
		valueRef: make(map[int64]int),
		byID:     make(map[string]int64),
	}
}

// set records value for id, replacing any previous value.
func (b *board) set(id string, value int64) {
	if old, ok := b.byID[id]; ok {
		if old == value {
			return
		}
		b.members.delete(standing{value: old, id: id})
		if b.valueRef[old]--; b.valueRef[old] == 0 {
			delete(b.valueRef, old)
			b.values.delete(old)
		}
	}
	b.byID[id] = value
	b.members.insert(standing{value: value, id: id})
	if b.valueRef[value] == 0 {
		b.values.insert(value)
	}
	b.valueRef[value]++
}

// rank returns the dense rank of id: members with equal values share a rank
// and the next distinct value takes the following rank.
func (b *board) rank(id string) (int, int64, bool) {
	v, ok := b.byID[id]
	if !ok {
		return 0, 0, false
	}
	return b.values.countBefore(v) + 1, v, true
}

// top returns up to n dense-ranked entries.
func (b *board) top(n int) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, 0, min(n, b.members.len()))
	rank := 0
	var prev int64
	b.members.walk(func(s standing) bool {
		if len(out) >= n {
			return false
		}
		if rank == 0 || s.value != prev {
			rank++
			prev = s.value
		}
		out = append(out, model.LeaderboardEntry{Rank: rank, UserID: s.id, Value: s.value})
		return true
	})
	return out
}
