// Package store keeps recent analysis reports for the reporting view.
//
// The "latest" slot is last-write-wins across all callers: a reader may see a report for an
// image it did not submit if another analysis finished after its own. Readers that need their
// own result should look it up by analysis id instead.
package store

import (
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// ErrNoReport is returned before any analysis has been stored, or after it expired
var ErrNoReport = errors.New("no analysis data found, analyze an image first")

const latestKey = "latest"

// Store holds reports keyed by analysis id plus a single latest slot
type Store struct {
	cache *cache.Cache
}

// New creates a store whose entries expire after ttl; ttl <= 0 keeps them forever
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		return &Store{cache: cache.New(cache.NoExpiration, 0)}
	}
	return &Store{cache: cache.New(ttl, ttl*2)}
}

// Put stores r under its analysis id and as the latest report.
// Stored reports are shared; callers must not mutate their slices afterwards.
func (s *Store) Put(r types.Report) {
	if id := r.Metadata.AnalysisID; id != "" {
		s.cache.SetDefault(id, r)
	}
	s.cache.SetDefault(latestKey, r)
}

// Latest returns the most recently stored report stamped with the generation time
func (s *Store) Latest(now time.Time) (types.Report, error) {
	return s.lookup(latestKey, now)
}

// Get returns the report of one analysis
func (s *Store) Get(id string, now time.Time) (types.Report, error) {
	if id == "" || id == latestKey {
		return types.Report{}, ErrNoReport
	}
	return s.lookup(id, now)
}

// HasLatest reports whether a latest report is available
func (s *Store) HasLatest() bool {
	_, ok := s.cache.Get(latestKey)
	return ok
}

// Len returns the number of stored entries including the latest slot
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

func (s *Store) lookup(key string, now time.Time) (types.Report, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return types.Report{}, ErrNoReport
	}
	r := v.(types.Report)
	r.ReportGenerated = now
	return r, nil
}
