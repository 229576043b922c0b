package fakes

import (
	"context"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"sort"
	"sync"
	"time"
)

// Clock é um relógio controlável compartilhado pelos fakes com TTL.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// CacheStore imita o RedisClient: chaves com TTL e sets de registry.
type CacheStore struct {
	mu         sync.Mutex
	clock      *Clock
	ttl        time.Duration
	values     map[string]cacheEntry
	registries map[string]map[string]bool
	counters   map[string]int64

	Err     error
	Sets    int
	Deleted []string
}

func NewCacheStore(clock *Clock, ttl time.Duration) *CacheStore {
	return &CacheStore{
		clock:      clock,
		ttl:        ttl,
		values:     make(map[string]cacheEntry),
		registries: make(map[string]map[string]bool),
		counters:   make(map[string]int64),
	}
}

func (s *CacheStore) SetWithRegistry(ctx context.Context, cacheKey string, cacheValue string, registryKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.Sets++
	s.values[cacheKey] = cacheEntry{value: cacheValue, expiresAt: s.clock.Now().Add(s.ttl)}
	for _, registryKey := range registryKeys {
		if s.registries[registryKey] == nil {
			s.registries[registryKey] = make(map[string]bool)
		}
		s.registries[registryKey][cacheKey] = true
	}
	return nil
}

func (s *CacheStore) GetKey(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return "", false, s.Err
	}

	entry, ok := s.values[key]
	if !ok || !entry.expiresAt.After(s.clock.Now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *CacheStore) GetMultipleSetMembers(ctx context.Context, keys []string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := make(map[string][]string, len(keys))
	for _, key := range keys {
		members := make([]string, 0, len(s.registries[key]))
		for member := range s.registries[key] {
			members = append(members, member)
		}
		sort.Strings(members)
		result[key] = members
	}
	return result, nil
}

func (s *CacheStore) DeleteKeys(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	for _, key := range keys {
		delete(s.values, key)
		delete(s.registries, key)
		s.Deleted = append(s.Deleted, key)
	}
	return nil
}

func (s *CacheStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}

	s.counters[key]++
	return s.counters[key], nil
}

func (s *CacheStore) GetCounters(ctx context.Context, keys []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := make(map[string]int64, len(keys))
	for _, key := range keys {
		result[key] = s.counters[key]
	}
	return result, nil
}

func (s *CacheStore) RaiseCounters(ctx context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	for key, value := range values {
		if value > s.counters[key] {
			s.counters[key] = value
		}
	}
	return nil
}

func (s *CacheStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

func (s *CacheStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

type pathKey struct {
	source domain.NodeRef
	target domain.NodeRef
	length int
}

// PathCache é o path cache em memória, com a mesma chave única
// (source, target, length) da tabela cached_paths.
type PathCache struct {
	mu    sync.Mutex
	paths map[pathKey]entities.CachedPath

	Err     error
	Lookups int
	Upserts int
}

func NewPathCache() *PathCache {
	return &PathCache{paths: make(map[pathKey]entities.CachedPath)}
}

func (c *PathCache) Lookup(ctx context.Context, source domain.NodeRef, target domain.NodeRef, now time.Time) (*entities.CachedPath, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Lookups++
	if c.Err != nil {
		return nil, c.Err
	}

	var best *entities.CachedPath
	for key, path := range c.paths {
		if key.source != source || key.target != target || path.ExpiredAt(now) {
			continue
		}
		if best == nil || path.PathLength < best.PathLength {
			found := path
			best = &found
		}
	}
	return best, nil
}

func (c *PathCache) Upsert(ctx context.Context, path entities.CachedPath) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Upserts++
	if c.Err != nil {
		return c.Err
	}

	key := pathKey{
		source: domain.NodeRef{CollectionID: path.SourceCollectionID, RecordID: path.SourceRecordID},
		target: domain.NodeRef{CollectionID: path.TargetCollectionID, RecordID: path.TargetRecordID},
		length: path.PathLength,
	}
	c.paths[key] = path
	return nil
}

func (c *PathCache) InvalidateByEdgeIDs(ctx context.Context, edgeIDs []int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return 0, c.Err
	}

	var removed int64
	for key, path := range c.paths {
		for _, id := range path.EdgeIDs {
			if containsID(edgeIDs, id) {
				delete(c.paths, key)
				removed++
				break
			}
		}
	}
	return removed, nil
}

func (c *PathCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// ResultCacheInvalidations registra as chamadas de invalidação do result cache.
type ResultCacheInvalidations struct {
	mu      sync.Mutex
	records []domain.NodeRef
	Err     error
}

func (r *ResultCacheInvalidations) InvalidateByRecords(ctx context.Context, records []domain.NodeRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return r.Err
}

func (r *ResultCacheInvalidations) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

func (r *ResultCacheInvalidations) Records() []domain.NodeRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.NodeRef(nil), r.records...)
}
