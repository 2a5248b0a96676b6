package storage

import (
	"fmt"
	"strings"

	"dashboard-api/internal/domain"
	"dashboard-api/internal/logger"
)

// Backend identifica onde os contadores de rate limit vivem
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
	// BackendAuto usa Redis quando há host configurado, senão memória
	BackendAuto Backend = "auto"
)

// ParseBackend converte STORAGE_TYPE; vazio equivale a auto
func ParseBackend(raw string) (Backend, error) {
	switch backend := Backend(strings.ToLower(strings.TrimSpace(raw))); backend {
	case "":
		return BackendAuto, nil
	case BackendRedis, BackendMemory, BackendAuto:
		return backend, nil
	default:
		return "", fmt.Errorf("unsupported storage type %q", raw)
	}
}

// RedisSettings são os parâmetros de conexão do Redis
type RedisSettings struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisSettings) validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("redis port cannot be empty")
	}
	if r.DB < 0 || r.DB > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got: %d", r.DB)
	}
	return nil
}

// Deployment descreve a implantação que compartilha as cotas de rate limit.
// Replicas > 1 exige um backend compartilhado: contadores em memória
// multiplicariam a cota pelo número de processos.
type Deployment struct {
	Backend  Backend
	Replicas int
	Redis    RedisSettings
}

// Resolve escolhe o backend concreto da implantação
func (d Deployment) Resolve() (Backend, error) {
	backend := d.Backend
	if backend == "" {
		backend = BackendAuto
	}

	if backend == BackendAuto {
		backend = BackendMemory
		if strings.TrimSpace(d.Redis.Host) != "" {
			backend = BackendRedis
		}
	}

	switch backend {
	case BackendRedis:
		if err := d.Redis.validate(); err != nil {
			return "", err
		}
	case BackendMemory:
		if d.Replicas > 1 {
			return "", fmt.Errorf("memory storage cannot share rate limits across %d replicas; configure REDIS_HOST", d.Replicas)
		}
	default:
		return "", fmt.Errorf("unsupported storage type %q", d.Backend)
	}

	return backend, nil
}

// Open resolve o backend da implantação e abre o storage correspondente
func Open(d Deployment, log domain.Logger) (domain.RateLimiterStorage, error) {
	backend, err := d.Resolve()
	if err != nil {
		return nil, err
	}

	if backend == BackendMemory {
		if log != nil {
			log.Info("Rate limit counters kept in process memory", map[string]interface{}{
				"requested": string(d.Backend),
				"replicas":  d.Replicas,
			})
		}
		return NewMemoryStorage(log), nil
	}

	storage, err := NewRedisStorage(d.Redis.Host, d.Redis.Port, d.Redis.Password, d.Redis.DB, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open redis storage: %w", err)
	}
	if log != nil {
		log.Info("Rate limit counters shared through Redis", map[string]interface{}{
			"requested": string(d.Backend),
			"replicas":  d.Replicas,
			"db":        d.Redis.DB,
		})
	}
	return storage, nil
}

// storageEventLogger é implementado pelo logger estruturado
type storageEventLogger interface {
	LogStorageEvent(operation string, key string, success bool, latency float64, err error)
}

// logOperation registra a operação com a chave mascarada
func logOperation(log domain.Logger, operation, key string, success bool, latency float64, err error) {
	if log == nil {
		return
	}
	if sl, ok := log.(storageEventLogger); ok {
		sl.LogStorageEvent(operation, key, success, latency, err)
		return
	}

	fields := map[string]interface{}{
		"operation": operation,
		"key":       logger.MaskKey(key),
		"latency":   latency,
	}
	if success {
		log.Debug("Storage operation completed", fields)
		return
	}
	log.Error("Storage operation failed", err, fields)
}
