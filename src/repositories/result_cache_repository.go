package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"relgraph/src/domain"
)

// CacheStore é o contrato mínimo do cache de resultados. *redis.RedisClient
// implementa; os testes usam uma versão em memória.
type CacheStore interface {
	SetWithRegistry(ctx context.Context, cacheKey string, cacheValue string, registryKeys []string) error
	GetKey(ctx context.Context, key string) (string, bool, error)
	GetMultipleSetMembers(ctx context.Context, keys []string) (map[string][]string, error)
	DeleteKeys(ctx context.Context, keys []string) error
	Incr(ctx context.Context, key string) (int64, error)
	GetCounters(ctx context.Context, keys []string) (map[string]int64, error)
	RaiseCounters(ctx context.Context, values map[string]int64) error
}

// GenerationKey é o contador global incrementado a cada invalidação.
const GenerationKey = "graph:generation"

// ResultCacheRepository guarda resultados de consultas já filtrados por
// permissão. Cada entrada é registrada em um set por registro envolvido
// (registry:record:<collection>:<id>) para que uma mutação de aresta consiga
// derrubar tudo que dependia de suas pontas.
//
// Apagar as chaves não basta quando uma consulta já estava em andamento antes
// da mutação e grava depois dela. Por isso cada entrada leva a geração lida
// antes da consulta, e cada registro invalidado ganha uma época
// (epoch:record:<collection>:<id>) com a geração da invalidação. Uma entrada
// só é servida se nenhum dos seus registros tiver época maior que a dela.
type ResultCacheRepository struct {
	store CacheStore
}

func NewResultCacheRepository(store CacheStore) *ResultCacheRepository {
	return &ResultCacheRepository{store: store}
}

func RecordRegistryKey(ref domain.NodeRef) string {
	return fmt.Sprintf("registry:record:%d:%d", ref.CollectionID, ref.RecordID)
}

func RecordEpochKey(ref domain.NodeRef) string {
	return fmt.Sprintf("epoch:record:%d:%d", ref.CollectionID, ref.RecordID)
}

type cachedEnvelope struct {
	Generation int64            `json:"generation"`
	Records    []domain.NodeRef `json:"records"`
	Data       json.RawMessage  `json:"data"`
}

// Generation devolve a geração atual. Deve ser lida antes da consulta cujo
// resultado será gravado com SetJSON.
func (r *ResultCacheRepository) Generation(ctx context.Context) (int64, error) {
	counters, err := r.store.GetCounters(ctx, []string{GenerationKey})
	if err != nil {
		return 0, fmt.Errorf("ResultCacheRepository.Generation - %w", err)
	}
	return counters[GenerationKey], nil
}

func (r *ResultCacheRepository) GetJSON(ctx context.Context, cacheKey string, dest interface{}) (bool, error) {
	cachedJSON, found, err := r.store.GetKey(ctx, cacheKey)
	if !found || err != nil {
		return false, err
	}

	var envelope cachedEnvelope
	if err := json.Unmarshal([]byte(cachedJSON), &envelope); err != nil {
		return false, fmt.Errorf("ResultCacheRepository.GetJSON - failed to unmarshal cached data: %w", err)
	}

	if len(envelope.Records) > 0 {
		epochKeys := make([]string, len(envelope.Records))
		for i, ref := range envelope.Records {
			epochKeys[i] = RecordEpochKey(ref)
		}

		epochs, err := r.store.GetCounters(ctx, epochKeys)
		if err != nil {
			return false, fmt.Errorf("ResultCacheRepository.GetJSON - failed to read record epochs: %w", err)
		}
		for _, key := range epochKeys {
			if epochs[key] > envelope.Generation {
				log.Printf("Cache STALE for key: %s (%s newer than generation %d)", cacheKey, key, envelope.Generation)
				return false, nil
			}
		}
	}

	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return false, fmt.Errorf("ResultCacheRepository.GetJSON - failed to unmarshal cached data: %w", err)
	}

	return true, nil
}

func (r *ResultCacheRepository) SetJSON(ctx context.Context, cacheKey string, value interface{}, records []domain.NodeRef, generation int64) error {
	dataJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ResultCacheRepository.SetJSON - failed to marshal cache data: %w", err)
	}

	unique := uniqueRefs(records)
	registryKeys := make([]string, len(unique))
	for i, ref := range unique {
		registryKeys[i] = RecordRegistryKey(ref)
	}

	envelopeJSON, err := json.Marshal(cachedEnvelope{Generation: generation, Records: unique, Data: dataJSON})
	if err != nil {
		return fmt.Errorf("ResultCacheRepository.SetJSON - failed to marshal cache envelope: %w", err)
	}

	if err := r.store.SetWithRegistry(ctx, cacheKey, string(envelopeJSON), registryKeys); err != nil {
		return fmt.Errorf("ResultCacheRepository.SetJSON - failed to set cache with registry: %w", err)
	}

	log.Printf("Cache SET with registry for key: %s (%d records)", cacheKey, len(registryKeys))
	return nil
}

// InvalidateByRecords avança a geração, marca a época dos registros e apaga
// os registries com todas as chaves que eles referenciam.
func (r *ResultCacheRepository) InvalidateByRecords(ctx context.Context, records []domain.NodeRef) error {
	records = uniqueRefs(records)
	if len(records) == 0 {
		return nil
	}

	generation, err := r.store.Incr(ctx, GenerationKey)
	if err != nil {
		return fmt.Errorf("ResultCacheRepository.InvalidateByRecords - failed to advance generation: %w", err)
	}

	epochs := make(map[string]int64, len(records))
	for _, ref := range records {
		epochs[RecordEpochKey(ref)] = generation
	}
	if err := r.store.RaiseCounters(ctx, epochs); err != nil {
		return fmt.Errorf("ResultCacheRepository.InvalidateByRecords - failed to mark record epochs: %w", err)
	}

	registryKeys := make([]string, len(records))
	for i, ref := range records {
		registryKeys[i] = RecordRegistryKey(ref)
	}

	registryResults, err := r.store.GetMultipleSetMembers(ctx, registryKeys)
	if err != nil {
		return fmt.Errorf("ResultCacheRepository.InvalidateByRecords - failed to get registry data: %w", err)
	}

	allKeysToDelete := make(map[string]bool)
	for _, registryKey := range registryKeys {
		allKeysToDelete[registryKey] = true
	}
	for _, relatedKeys := range registryResults {
		for _, relatedKey := range relatedKeys {
			allKeysToDelete[relatedKey] = true
		}
	}

	keysToDelete := make([]string, 0, len(allKeysToDelete))
	for key := range allKeysToDelete {
		keysToDelete = append(keysToDelete, key)
	}

	log.Printf("Invalidating %d cache keys for %d records", len(keysToDelete), len(records))
	return r.store.DeleteKeys(ctx, keysToDelete)
}

func uniqueRefs(refs []domain.NodeRef) []domain.NodeRef {
	seen := make(map[domain.NodeRef]bool, len(refs))
	unique := make([]domain.NodeRef, 0, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		unique = append(unique, ref)
	}
	return unique
}
