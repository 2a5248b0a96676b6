package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dashboard-api/internal/domain"
)

const storageKeyPrefix = "rate_limit"

// RateLimiterService implementa a lógica de negócio do rate limiting
// Separada do middleware; o guard só enxerga a interface domain.RateLimiter
type RateLimiterService struct {
	storage domain.RateLimiterStorage
	logger  domain.Logger
	now     func() time.Time

	// limites conhecidos por escopo, indexados pelo segmento que entra na chave
	mu     sync.RWMutex
	limits map[domain.Scope]map[string]domain.RateLimit
}

// NewRateLimiterService cria uma nova instância do serviço
func NewRateLimiterService(storage domain.RateLimiterStorage, logger domain.Logger) *RateLimiterService {
	return &RateLimiterService{
		storage: storage,
		logger:  logger,
		now:     time.Now,
		limits:  make(map[domain.Scope]map[string]domain.RateLimit),
	}
}

// Track registra limites do escopo para que Status e Reset os alcancem antes do primeiro Admit
func (s *RateLimiterService) Track(scope domain.Scope, limits ...*domain.RateLimit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, limit := range limits {
		if limit == nil || limit.Validate() != nil {
			continue
		}
		if s.limits[scope] == nil {
			s.limits[scope] = make(map[string]domain.RateLimit)
		}
		s.limits[scope][limitSegment(limit)] = *limit
	}
}

// TrackPolicies registra os limites de usuário e de IP de todos os presets
func (s *RateLimiterService) TrackPolicies(set domain.PolicySet) {
	s.Track(domain.UserScope, set.Limits(domain.UserScope)...)
	s.Track(domain.IPScope, set.Limits(domain.IPScope)...)
}

// trackedLimits retorna os limites conhecidos do escopo em ordem estável
func (s *RateLimiterService) trackedLimits(scope domain.Scope) []domain.RateLimit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked := s.limits[scope]
	segments := make([]string, 0, len(tracked))
	for segment := range tracked {
		segments = append(segments, segment)
	}
	sort.Strings(segments)

	limits := make([]domain.RateLimit, 0, len(segments))
	for _, segment := range segments {
		limits = append(limits, tracked[segment])
	}
	return limits
}

func (s *RateLimiterService) isTracked(scope domain.Scope, limit *domain.RateLimit) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.limits[scope][limitSegment(limit)]
	return ok
}

// Admit consome uma unidade da cota de (scope, key).
// Falhas de storage resultam em negação: o limitador nunca falha aberto.
func (s *RateLimiterService) Admit(ctx context.Context, scope domain.Scope, key string, limit *domain.RateLimit) domain.AdmitResult {
	if limit == nil {
		return domain.AdmitResult{Allowed: true, Scope: scope}
	}

	now := s.now()
	denied := domain.AdmitResult{
		Allowed:   false,
		Scope:     scope,
		Limit:     limit.Max,
		Remaining: 0,
		ResetAt:   now.Add(limit.Window),
		Limited:   true,
	}

	if err := limit.Validate(); err != nil {
		s.logger.Error("Invalid rate limit, denying request", err, map[string]interface{}{
			"scope": scope,
		})
		return denied
	}

	if strings.TrimSpace(key) == "" {
		s.logger.Warn("Empty rate limit key, denying request", map[string]interface{}{
			"scope": scope,
		})
		return denied
	}

	if !s.isTracked(scope, limit) {
		s.Track(scope, limit)
	}

	storageKey := s.buildStorageKey(scope, key, limit)

	status, allowed, err := s.storage.Admit(ctx, storageKey, limit.Max, limit.Window)
	if err != nil || status == nil {
		if err == nil {
			err = fmt.Errorf("storage returned no status")
		}
		s.logger.Error("Failed to admit request, denying", err, map[string]interface{}{
			"storage_key": storageKey,
			"limit":       limit.Max,
		})
		return denied
	}

	remaining := limit.Max - status.Count
	if remaining < 0 {
		remaining = 0
	}

	result := domain.AdmitResult{
		Allowed:   allowed,
		Scope:     scope,
		Limit:     limit.Max,
		Remaining: remaining,
		ResetAt:   status.ResetAt(),
		Limited:   true,
	}

	if !allowed {
		s.logger.Info("Rate limit exceeded", map[string]interface{}{
			"storage_key":   storageKey,
			"current_count": status.Count,
			"limit":         limit.Max,
			"reset_at":      result.ResetAt,
		})
		return result
	}

	s.logger.Debug("Request allowed", map[string]interface{}{
		"storage_key":   storageKey,
		"current_count": status.Count,
		"limit":         limit.Max,
		"remaining":     remaining,
	})

	return result
}

// Status retorna um contador por limite conhecido; janelas encerradas contam zero
func (s *RateLimiterService) Status(ctx context.Context, scope domain.Scope, key string) ([]*domain.RateLimitStatus, error) {
	limits := s.trackedLimits(scope)
	statuses := make([]*domain.RateLimitStatus, 0, len(limits))

	for i := range limits {
		limit := &limits[i]
		storageKey := s.buildStorageKey(scope, key, limit)

		status, err := s.storage.Get(ctx, storageKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get status: %w", err)
		}

		if status == nil {
			status = &domain.RateLimitStatus{Key: storageKey}
		}
		status.Scope = scope
		status.Bucket = limit.BucketName()
		status.Limit = limit.Max
		status.Window = limit.Window
		if status.WindowStart.IsZero() || !s.now().Before(status.ResetAt()) {
			status.Count = 0
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// Reset limpa a chave em todos os limites conhecidos
func (s *RateLimiterService) Reset(ctx context.Context, scope domain.Scope, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("rate limit key cannot be empty")
	}

	limits := s.trackedLimits(scope)
	for i := range limits {
		storageKey := s.buildStorageKey(scope, key, &limits[i])
		if err := s.storage.Reset(ctx, storageKey); err != nil {
			return fmt.Errorf("failed to reset rate limit: %w", err)
		}
	}

	s.logger.Info("Rate limit reset", map[string]interface{}{
		"scope":    scope,
		"counters": len(limits),
	})

	return nil
}

// Health verifica o storage subjacente
func (s *RateLimiterService) Health(ctx context.Context) error {
	return s.storage.Health(ctx)
}

// buildStorageKey monta a chave de storage.
// Escopo, bucket e limite fazem parte da chave: dois limites nunca dividem o mesmo contador.
func (s *RateLimiterService) buildStorageKey(scope domain.Scope, key string, limit *domain.RateLimit) string {
	return fmt.Sprintf("%s:%s:%s:%s", storageKeyPrefix, scope, limitSegment(limit), key)
}

// limitSegment identifica o limite como <bucket>:<max>:<janela em ms>
func limitSegment(limit *domain.RateLimit) string {
	return fmt.Sprintf("%s:%d:%d", limit.BucketName(), limit.Max, limit.Window.Milliseconds())
}
