package chain

import (
	"errors"
	"sync"
)

// EndpointSet tracks an ordered list of equivalent RPC endpoints and moves
// to the next one after failThreshold consecutive failures on the current.
type EndpointSet struct {
	endpoints     []string
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewEndpointSet(endpoints []string, failThreshold int) (*EndpointSet, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 1
	}
	return &EndpointSet{
		endpoints:     list,
		failThreshold: failThreshold,
	}, nil
}

func (s *EndpointSet) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoints[s.index]
}

func (s *EndpointSet) Endpoints() []string {
	return append([]string(nil), s.endpoints...)
}

// Success resets the failure count if endpoint is still the current one.
func (s *EndpointSet) Success(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoints[s.index] == endpoint {
		s.failCount = 0
	}
}

// Failure records a failed call and reports whether the set rotated.
func (s *EndpointSet) Failure(endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoints[s.index] != endpoint {
		return false
	}
	s.failCount++
	if s.failCount < s.failThreshold || len(s.endpoints) == 1 {
		return false
	}
	s.index = (s.index + 1) % len(s.endpoints)
	s.failCount = 0
	return true
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = NormalizeWSEndpoint(ep)
		if ep == "" {
			continue
		}
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
