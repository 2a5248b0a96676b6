package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dashboard-api/internal/domain"

	"github.com/go-redis/redis/v8"
)

// admitScript executa o incremento condicional de forma atômica.
// O contador só é incrementado enquanto count < max; a chave expira no fim da janela.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local start = now - (now % window)

local data = redis.call('HMGET', key, 'start', 'count')
local count = 0
if data[1] and tonumber(data[1]) == start then
	count = tonumber(data[2]) or 0
end

if count >= max then
	return {count, 0, start}
end

count = count + 1
redis.call('HSET', key, 'start', start, 'count', count, 'limit', max, 'window', window)
redis.call('PEXPIREAT', key, start + window)

return {count, 1, start}
`)

// RedisStorage implementa a interface domain.RateLimiterStorage usando Redis
type RedisStorage struct {
	client redis.Cmdable
	logger domain.Logger
	now    func() time.Time
}

// NewRedisStorage cria uma nova instância do RedisStorage
func NewRedisStorage(host, port, password string, db int, logger domain.Logger) (*RedisStorage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		// Configurações de performance
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": host,
			"port": port,
			"db":   db,
		})
	}

	return NewRedisStorageWithClient(rdb, logger), nil
}

// RedisOption customiza o RedisStorage
type RedisOption func(*RedisStorage)

// WithRedisClock substitui o relógio que define o início das janelas
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *RedisStorage) {
		r.now = now
	}
}

// NewRedisStorageWithClient cria o storage sobre um cliente já configurado
func NewRedisStorageWithClient(client redis.Cmdable, logger domain.Logger, opts ...RedisOption) *RedisStorage {
	storage := &RedisStorage{
		client: client,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(storage)
	}
	return storage
}

// Admit incrementa o contador da janela corrente se ainda houver cota
func (r *RedisStorage) Admit(ctx context.Context, key string, max int, window time.Duration) (*domain.RateLimitStatus, bool, error) {
	start := time.Now()

	windowMs := window.Milliseconds()
	if max <= 0 || windowMs <= 0 {
		err := fmt.Errorf("invalid limit for key %s: max=%d window=%s", key, max, window)
		r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, err
	}

	nowMs := r.now().UnixMilli()

	result, err := admitScript.Run(ctx, r.client, []string{key}, max, windowMs, nowMs).Result()
	if err != nil {
		r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, fmt.Errorf("failed to admit key %s: %w", key, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		err := fmt.Errorf("invalid admit result for key %s", key)
		r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, err
	}

	count, err1 := toInt64(values[0])
	admitted, err2 := toInt64(values[1])
	windowStart, err3 := toInt64(values[2])
	for _, convErr := range []error{err1, err2, err3} {
		if convErr != nil {
			r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, convErr)
			return nil, false, fmt.Errorf("invalid admit result for key %s: %w", key, convErr)
		}
	}

	status := &domain.RateLimitStatus{
		Key:         key,
		Count:       int(count),
		Limit:       max,
		Window:      window,
		WindowStart: time.UnixMilli(windowStart),
	}

	r.logStorageOperation("ADMIT", key, true, time.Since(start).Seconds()*1000, nil)
	return status, admitted == 1, nil
}

// Get recupera o estado atual de uma chave
func (r *RedisStorage) Get(ctx context.Context, key string) (*domain.RateLimitStatus, error) {
	start := time.Now()

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		r.logStorageOperation("GET", key, false, time.Since(start).Seconds()*1000, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if len(values) == 0 {
		r.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
		return nil, nil
	}

	status := &domain.RateLimitStatus{Key: key}
	fields := map[string]*int64{}
	var windowStart, count, limit, windowMs int64
	fields["start"] = &windowStart
	fields["count"] = &count
	fields["limit"] = &limit
	fields["window"] = &windowMs

	for name, target := range fields {
		parsed, err := strconv.ParseInt(values[name], 10, 64)
		if err != nil {
			r.logStorageOperation("GET", key, false, time.Since(start).Seconds()*1000, err)
			return nil, fmt.Errorf("invalid %s for key %s: %w", name, key, err)
		}
		*target = parsed
	}

	status.Count = int(count)
	status.Limit = int(limit)
	status.Window = time.Duration(windowMs) * time.Millisecond
	status.WindowStart = time.UnixMilli(windowStart)

	r.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
	return status, nil
}

// Reset limpa os dados de uma chave
func (r *RedisStorage) Reset(ctx context.Context, key string) error {
	start := time.Now()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logStorageOperation("RESET", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to reset key %s: %w", key, err)
	}

	r.logStorageOperation("RESET", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	start := time.Now()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logStorageOperation("HEALTH", "ping", false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.logStorageOperation("HEALTH", "ping", true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			if r.logger != nil {
				r.logger.Error("Failed to close Redis connection", err, nil)
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed", nil)
		}
	}
	return nil
}

// logStorageOperation registra operações de storage
func (r *RedisStorage) logStorageOperation(operation, key string, success bool, latency float64, err error) {
	logOperation(r.logger, operation, key, success, latency, err)
}

// toInt64 converte os retornos do script Lua
func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(v), 10, 64)
	}
}
