package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

type RedisClient struct {
	client            redis.UniversalClient
	breaker           *gobreaker.CircuitBreaker
	defaultTTLSeconds time.Duration
}

// NewRedisClient aceita um único endereço ou uma lista separada por vírgula (cluster).
func NewRedisClient(addrs string, poolSize int, defaultTTLSeconds time.Duration) *RedisClient {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),

		// Pool settings para alta concorrência
		PoolSize:     poolSize,
		MinIdleConns: 10,

		MaxRedirects: 3,

		// Timeouts otimizados para cache
		DialTimeout:  5 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	// Com o circuito aberto o cache responde erro imediatamente e o chamador
	// segue direto para o PostgreSQL, sem pagar os timeouts do Redis.
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-result-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker '%s' state changed from %v to %v", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})

	return &RedisClient{
		client:            client,
		breaker:           breaker,
		defaultTTLSeconds: defaultTTLSeconds,
	}
}

func (rc *RedisClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	return rc.breaker.Execute(fn)
}

func (rc *RedisClient) SetWithRegistry(ctx context.Context, cacheKey string, cacheValue string, registryKeys []string) error {
	_, err := rc.execute(func() (interface{}, error) {
		pipe := rc.client.Pipeline()

		fields := map[string]interface{}{
			"data":      cacheValue,
			"cached_at": time.Now().Unix(),
		}
		pipe.HSet(ctx, cacheKey, fields)
		pipe.Expire(ctx, cacheKey, rc.defaultTTLSeconds)

		// O registry guarda quais chaves de cache dependem de cada registro,
		// permitindo invalidar tudo quando uma aresta do registro muda.
		for _, registryKey := range registryKeys {
			pipe.SAdd(ctx, registryKey, cacheKey)
			pipe.Expire(ctx, registryKey, rc.defaultTTLSeconds)
		}

		return pipe.Exec(ctx)
	})
	return err
}

func (rc *RedisClient) GetKey(ctx context.Context, key string) (string, bool, error) {
	value, err := rc.execute(func() (interface{}, error) {
		return rc.client.HGet(ctx, key, "data").Result()
	})

	// Cache miss
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return value.(string), true, nil
}

func (rc *RedisClient) GetMultipleSetMembers(ctx context.Context, keys []string) (map[string][]string, error) {
	result, err := rc.execute(func() (interface{}, error) {
		pipe := rc.client.Pipeline()
		cmds := make(map[string]*redis.StringSliceCmd, len(keys))
		for _, key := range keys {
			cmds[key] = pipe.SMembers(ctx, key)
		}

		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}

		members := make(map[string][]string, len(cmds))
		for key, cmd := range cmds {
			values, err := cmd.Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return nil, err
			}
			members[key] = values
		}
		return members, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(map[string][]string), nil
}

// Em cluster as chaves podem estar em slots diferentes, então o DEL é feito uma a uma.
func (rc *RedisClient) DeleteKeys(ctx context.Context, keys []string) error {
	var errs []string

	for _, key := range keys {
		_, err := rc.execute(func() (interface{}, error) {
			return rc.client.Del(ctx, key).Result()
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("key %s: %v", key, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalidation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// setIfGreater só avança o contador: duas invalidações concorrentes nunca
// fazem a época de um registro voltar para um valor menor.
var setIfGreater = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
end
return 1
`)

func (rc *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	value, err := rc.execute(func() (interface{}, error) {
		return rc.client.Incr(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return value.(int64), nil
}

// GetCounters lê contadores inteiros; chave ausente vale 0.
func (rc *RedisClient) GetCounters(ctx context.Context, keys []string) (map[string]int64, error) {
	result, err := rc.execute(func() (interface{}, error) {
		pipe := rc.client.Pipeline()
		cmds := make(map[string]*redis.StringCmd, len(keys))
		for _, key := range keys {
			cmds[key] = pipe.Get(ctx, key)
		}

		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}

		counters := make(map[string]int64, len(cmds))
		for key, cmd := range cmds {
			value, err := cmd.Int64()
			if errors.Is(err, redis.Nil) {
				counters[key] = 0
				continue
			}
			if err != nil {
				return nil, err
			}
			counters[key] = value
		}
		return counters, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(map[string]int64), nil
}

// RaiseCounters grava cada valor só se for maior que o atual. O contador vive
// o dobro do TTL padrão para sobreviver a uma entrada gravada com atraso.
// Uma chave por script por causa dos slots do cluster.
func (rc *RedisClient) RaiseCounters(ctx context.Context, values map[string]int64) error {
	ttl := 2 * int64(rc.defaultTTLSeconds.Seconds())
	if ttl < 1 {
		ttl = 1
	}

	var errs []string
	for key, value := range values {
		_, err := rc.execute(func() (interface{}, error) {
			return setIfGreater.Run(ctx, rc.client, []string{key}, value, ttl).Result()
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("key %s: %v", key, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("counter errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (rc *RedisClient) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
