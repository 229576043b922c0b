package fakes

import (
	"context"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/kafka"
	"sort"
	"sync"
	"time"
)

// EdgeTypeStore é o catálogo de tipos em memória.
type EdgeTypeStore struct {
	mu     sync.Mutex
	types  map[int64]entities.EdgeType
	nextID int64

	Err error
}

func NewEdgeTypeStore() *EdgeTypeStore {
	return &EdgeTypeStore{types: make(map[int64]entities.EdgeType)}
}

// Put grava o tipo como está. ID zero recebe o próximo id.
func (s *EdgeTypeStore) Put(edgeType entities.EdgeType) entities.EdgeType {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edgeType.ID == 0 {
		s.nextID++
		edgeType.ID = s.nextID
	} else if edgeType.ID > s.nextID {
		s.nextID = edgeType.ID
	}
	s.types[edgeType.ID] = edgeType
	return edgeType
}

func (s *EdgeTypeStore) findSlug(slug string) (entities.EdgeType, bool) {
	for _, edgeType := range s.types {
		if edgeType.Slug == slug {
			return edgeType, true
		}
	}
	return entities.EdgeType{}, false
}

func (s *EdgeTypeStore) Create(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, error) {
	s.mu.Lock()
	if s.Err != nil {
		s.mu.Unlock()
		return nil, s.Err
	}
	if _, exists := s.findSlug(edgeType.Slug); exists {
		s.mu.Unlock()
		return nil, domain.NewValidationError("slug", "edge type %q already exists", edgeType.Slug)
	}
	s.mu.Unlock()

	now := time.Now().UTC()
	edgeType.CreatedAt, edgeType.UpdatedAt = now, now
	edgeType.ID = 0
	created := s.Put(edgeType)
	return &created, nil
}

func (s *EdgeTypeStore) InsertIfAbsent(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, bool, error) {
	s.mu.Lock()
	if s.Err != nil {
		s.mu.Unlock()
		return nil, false, s.Err
	}
	if existing, exists := s.findSlug(edgeType.Slug); exists {
		s.mu.Unlock()
		return &existing, false, nil
	}
	s.mu.Unlock()

	edgeType.ID = 0
	created := s.Put(edgeType)
	return &created, true, nil
}

func (s *EdgeTypeStore) GetByID(ctx context.Context, id int64) (*entities.EdgeType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	edgeType, ok := s.types[id]
	if !ok || edgeType.IsDeleted {
		return nil, domain.ErrEdgeTypeNotFound
	}
	return &edgeType, nil
}

func (s *EdgeTypeStore) GetBySlug(ctx context.Context, slug string) (*entities.EdgeType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	edgeType, ok := s.findSlug(slug)
	if !ok || edgeType.IsDeleted {
		return nil, domain.ErrEdgeTypeNotFound
	}
	return &edgeType, nil
}

func (s *EdgeTypeStore) GetBySlugs(ctx context.Context, slugs []string) ([]entities.EdgeType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := make([]entities.EdgeType, 0, len(slugs))
	for _, slug := range slugs {
		if edgeType, ok := s.findSlug(slug); ok && !edgeType.IsDeleted {
			result = append(result, edgeType)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *EdgeTypeStore) GetByIDs(ctx context.Context, ids []int64) ([]entities.EdgeType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	result := make([]entities.EdgeType, 0, len(ids))
	for _, id := range ids {
		if edgeType, ok := s.types[id]; ok {
			result = append(result, edgeType)
		}
	}
	return result, nil
}

func (s *EdgeTypeStore) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	edgeType, ok := s.types[id]
	if !ok || edgeType.IsSystem || edgeType.IsDeleted {
		return domain.ErrEdgeTypeNotFound
	}

	now := time.Now().UTC()
	edgeType.IsDeleted = true
	edgeType.DeletedAt = &now
	s.types[id] = edgeType
	return nil
}

func (s *EdgeTypeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.types)
}

// PolicyStore guarda as policies por caller type.
type PolicyStore struct {
	mu       sync.Mutex
	policies map[string]map[int64]entities.PermissionPolicy

	Err   error
	Loads int
}

func NewPolicyStore(policies ...entities.PermissionPolicy) *PolicyStore {
	store := &PolicyStore{policies: make(map[string]map[int64]entities.PermissionPolicy)}
	for _, policy := range policies {
		store.put(policy)
	}
	return store
}

func (s *PolicyStore) put(policy entities.PermissionPolicy) {
	if s.policies[policy.CallerType] == nil {
		s.policies[policy.CallerType] = make(map[int64]entities.PermissionPolicy)
	}
	s.policies[policy.CallerType][policy.EdgeTypeID] = policy
}

func (s *PolicyStore) GetPoliciesForCallerType(ctx context.Context, callerType string) (map[int64]entities.PermissionPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Loads++
	if s.Err != nil {
		return nil, s.Err
	}

	result := make(map[int64]entities.PermissionPolicy, len(s.policies[callerType]))
	for id, policy := range s.policies[callerType] {
		result[id] = policy
	}
	return result, nil
}

func (s *PolicyStore) UpsertPolicy(ctx context.Context, policy entities.PermissionPolicy) (*entities.PermissionPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if policy.MaxDepth <= 0 {
		policy.MaxDepth = entities.DefaultPolicyMaxDepth
	}
	s.put(policy)
	return &policy, nil
}

// Records é a camada de registros em memória.
type Records struct {
	mu      sync.Mutex
	records map[domain.NodeRef]map[string]interface{}

	Err error
}

func NewRecords() *Records {
	return &Records{records: make(map[domain.NodeRef]map[string]interface{})}
}

func (r *Records) Put(ref domain.NodeRef, fields map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fields == nil {
		fields = map[string]interface{}{}
	}
	r.records[ref] = fields
}

func (r *Records) Delete(ref domain.NodeRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, ref)
}

func (r *Records) RecordExists(ctx context.Context, ref domain.NodeRef) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return false, r.Err
	}
	_, ok := r.records[ref]
	return ok, nil
}

func (r *Records) GetRecordFields(ctx context.Context, refs []domain.NodeRef) (map[domain.NodeRef]map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}

	result := make(map[domain.NodeRef]map[string]interface{}, len(refs))
	for _, ref := range refs {
		if fields, ok := r.records[ref]; ok {
			copied := make(map[string]interface{}, len(fields))
			for k, v := range fields {
				copied[k] = v
			}
			result[ref] = copied
		}
	}
	return result, nil
}

// CallerTypes resolve o tipo do caller a partir do id.
type CallerTypes map[int64]string

func (c CallerTypes) CallerType(ctx context.Context, callerID int64) (string, error) {
	return c[callerID], nil
}

type producedBatch struct {
	Topic    string
	Messages []kafka.Message
}

// Producer captura as mensagens publicadas.
type Producer struct {
	mu      sync.Mutex
	batches []producedBatch

	Err error
}

func (p *Producer) Producer(messages []kafka.Message, topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.batches = append(p.batches, producedBatch{Topic: topic, Messages: messages})
	return nil
}

func (p *Producer) Messages() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]kafka.Message, 0)
	for _, batch := range p.batches {
		result = append(result, batch.Messages...)
	}
	return result
}

func (p *Producer) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]string, 0, len(p.batches))
	for _, batch := range p.batches {
		result = append(result, batch.Topic)
	}
	return result
}
