package storage

import (
	"context"
	"sync"

	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

var _ Releases = &StaticReleases{}

// StaticReleases resolves releases from a fixed table, keyed by repository name.
//
// It is used for offline runs and in tests.
type StaticReleases struct {
	mu   sync.RWMutex
	tags map[string]string
}

// NewStaticReleases builds a release table from "owner/name" (or bare name) keys to tags
func NewStaticReleases(tags map[string]string) *StaticReleases {
	s := &StaticReleases{tags: make(map[string]string, len(tags))}
	for k, v := range tags {
		s.tags[k] = v
	}
	return s
}

// Set the latest release of a repository
func (s *StaticReleases) Set(repo Repository, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[repo.String()] = tag
}

// LatestRelease returns the known tag, looking up "owner/name" then "name"
func (s *StaticReleases) LatestRelease(_ context.Context, repo Repository) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tag, ok := s.tags[repo.String()]; ok {
		return tag, nil
	}
	if tag, ok := s.tags[repo.Name]; ok {
		return tag, nil
	}
	return "", status.ErrNotFound.WrapMessage("no release for %s", repo)
}
