// Package policy provides the per-server policy sources used by the dispatcher:
// a static source built from configuration and an expiring cache that can
// front any source, including the PostgreSQL policy store.
package policy

import (
	"context"
	"errors"

	"github.com/okian/zen/internal/domain/model"
)

// ErrUnavailable is returned when the underlying source cannot answer.
var ErrUnavailable = errors.New("policy source unavailable")

// Source returns the policy snapshot for a server.
type Source interface {
	Policy(ctx context.Context, serverID string) (*model.Policy, error)
}

// Static serves policies resolved at startup. Servers without an override get
// a copy of the template.
type Static struct {
	template  *model.Policy
	overrides map[string]*model.Policy
}

var _ Source = (*Static)(nil)

// NewStatic creates a Static source. A nil template uses model.DefaultPolicy.
func NewStatic(template *model.Policy, overrides map[string]*model.Policy) *Static {
	if template == nil {
		template = model.DefaultPolicy("")
	}
	o := make(map[string]*model.Policy, len(overrides))
	for id, p := range overrides {
		o[id] = p.Clone(id)
	}
	return &Static{template: template, overrides: o}
}

// Policy never fails. The returned snapshot must not be modified.
func (s *Static) Policy(_ context.Context, serverID string) (*model.Policy, error) {
	if p, ok := s.overrides[serverID]; ok {
		return p, nil
	}
	return s.template.Clone(serverID), nil
}
