package projection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"renderstream-bridge/internal/stream"
)

// PolicyType is the projection policy name viewports select.
const PolicyType = "renderstream"

// ErrUnknownPolicyType is returned by Create for any other policy type.
var ErrUnknownPolicyType = errors.New("unknown projection policy type")

// Registry creates policies and finds them by viewport.
type Registry struct {
	defaults Options
	log      *slog.Logger

	mu       sync.RWMutex
	policies []*Policy
}

func NewRegistry(defaults Options, log *slog.Logger) *Registry {
	return &Registry{defaults: defaults, log: log}
}

// Create builds a policy for a viewport, replacing any existing policy of
// the same viewport. params override the registry defaults.
func (r *Registry) Create(policyType, viewportID string, params map[string]string, s *stream.FrameStream) (*Policy, error) {
	if policyType != PolicyType {
		return nil, fmt.Errorf("%q: %w", policyType, ErrUnknownPolicyType)
	}
	p := NewPolicy(viewportID, params, r.defaults.Override(params), s, r.log)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.policies {
		if existing.viewportID == viewportID {
			r.policies[i] = p
			return p, nil
		}
	}
	r.policies = append(r.policies, p)
	r.log.Debug("created projection policy", slog.String("viewport", viewportID))
	return p, nil
}

// Policies returns the policies in creation order.
func (r *Registry) Policies() []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Policy(nil), r.policies...)
}

// ByViewport returns the policy of a viewport.
func (r *Registry) ByViewport(viewportID string) (*Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.policies {
		if p.viewportID == viewportID {
			return p, true
		}
	}
	return nil, false
}

// Remove drops the policy of a viewport.
func (r *Registry) Remove(viewportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.policies {
		if p.viewportID == viewportID {
			r.policies = append(r.policies[:i], r.policies[i+1:]...)
			return
		}
	}
}

// Reset drops every policy.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.policies = nil
	r.mu.Unlock()
}
