package repository

import "github.com/okian/zen/internal/domain/model"

// grantRing keeps the newest grants of one server in a fixed-size ring.
type grantRing struct {
	rows []model.ReputationGrant
	next int // oldest slot once the ring is full
}

func (r *grantRing) push(g model.ReputationGrant, capacity int) {
	if len(r.rows) < capacity {
		r.rows = append(r.rows, g)
		return
	}
	r.rows[r.next] = g
	r.next = (r.next + 1) % len(r.rows)
}

// newest returns up to limit grants, newest first.
func (r *grantRing) newest(limit int) []model.ReputationGrant {
	n := len(r.rows)
	out := make([]model.ReputationGrant, 0, min(limit, n))
	for k := 1; k <= n && len(out) < limit; k++ {
		out = append(out, r.rows[((r.next-k)%n+n)%n])
	}
	return out
}
