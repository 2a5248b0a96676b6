package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dashboard-api/internal/domain"
)

// counterEntry é o contador de uma chave; protegido pelo próprio mutex
// para que chaves diferentes não disputem o mesmo lock
type counterEntry struct {
	mu          sync.Mutex
	count       int
	limit       int
	window      time.Duration
	windowStart time.Time
	evicted     bool
}

// MemoryStorage implementa a interface domain.RateLimiterStorage usando memória
type MemoryStorage struct {
	data     map[string]*counterEntry
	mutex    sync.RWMutex
	logger   domain.Logger
	now      func() time.Time
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// MemoryOption customiza o MemoryStorage
type MemoryOption func(*MemoryStorage)

// WithClock substitui o relógio usado nas janelas
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStorage) {
		m.now = now
	}
}

// WithCleanupInterval define o intervalo da limpeza de janelas encerradas
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(m *MemoryStorage) {
		m.interval = interval
	}
}

// NewMemoryStorage cria uma nova instância do MemoryStorage
func NewMemoryStorage(logger domain.Logger, opts ...MemoryOption) *MemoryStorage {
	storage := &MemoryStorage{
		data:     make(map[string]*counterEntry),
		logger:   logger,
		now:      time.Now,
		interval: time.Minute,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(storage)
	}

	// Inicia goroutine de limpeza
	go storage.cleanup()

	if logger != nil {
		logger.Info("Memory storage initialized", nil)
	}

	return storage
}

// Admit incrementa o contador da janela corrente se ainda houver cota
func (m *MemoryStorage) Admit(ctx context.Context, key string, max int, window time.Duration) (*domain.RateLimitStatus, bool, error) {
	start := time.Now()

	if max <= 0 || window <= 0 {
		err := fmt.Errorf("invalid limit for key %s: max=%d window=%s", key, max, window)
		m.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, err
	}

	for {
		entry := m.entryFor(key)

		entry.mu.Lock()
		if entry.evicted {
			// Removida pela limpeza entre a busca e o lock; busca de novo
			entry.mu.Unlock()
			continue
		}

		now := m.now()
		windowStart := now.Truncate(window)
		if !entry.windowStart.Equal(windowStart) || entry.window != window {
			entry.count = 0
			entry.windowStart = windowStart
			entry.window = window
		}
		entry.limit = max

		allowed := entry.count < max
		if allowed {
			entry.count++
		}

		status := &domain.RateLimitStatus{
			Key:         key,
			Count:       entry.count,
			Limit:       entry.limit,
			Window:      entry.window,
			WindowStart: entry.windowStart,
		}
		entry.mu.Unlock()

		m.logStorageOperation("ADMIT", key, true, time.Since(start).Seconds()*1000, nil)
		return status, allowed, nil
	}
}

// entryFor busca ou cria o contador de uma chave
func (m *MemoryStorage) entryFor(key string) *counterEntry {
	m.mutex.RLock()
	entry, exists := m.data[key]
	m.mutex.RUnlock()
	if exists {
		return entry
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, exists = m.data[key]; exists {
		return entry
	}
	entry = &counterEntry{}
	m.data[key] = entry
	return entry
}

// Get recupera o estado atual de uma chave
func (m *MemoryStorage) Get(ctx context.Context, key string) (*domain.RateLimitStatus, error) {
	start := time.Now()

	m.mutex.RLock()
	entry, exists := m.data[key]
	m.mutex.RUnlock()

	if !exists {
		m.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
		return nil, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.evicted {
		return nil, nil
	}

	status := &domain.RateLimitStatus{
		Key:         key,
		Count:       entry.count,
		Limit:       entry.limit,
		Window:      entry.window,
		WindowStart: entry.windowStart,
	}

	m.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
	return status, nil
}

// Reset limpa os dados de uma chave
func (m *MemoryStorage) Reset(ctx context.Context, key string) error {
	start := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, exists := m.data[key]; exists {
		entry.mu.Lock()
		entry.evicted = true
		entry.mu.Unlock()
		delete(m.data, key)
	}

	m.logStorageOperation("RESET", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	m.mutex.RLock()
	dataSize := len(m.data)
	m.mutex.RUnlock()

	if m.logger != nil {
		m.logger.Debug("Memory storage health check", map[string]interface{}{
			"data_entries": dataSize,
		})
	}

	return nil
}

// Close interrompe a limpeza e descarta os contadores
func (m *MemoryStorage) Close() error {
	m.stopOnce.Do(func() {
		close(m.done)
	})

	m.mutex.Lock()
	m.data = make(map[string]*counterEntry)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Info("Memory storage closed", nil)
	}
	return nil
}

// cleanup remove entradas expiradas periodicamente
func (m *MemoryStorage) cleanup() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanupExpiredEntries()
		}
	}
}

// cleanupExpiredEntries remove contadores cuja janela já encerrou
func (m *MemoryStorage) cleanupExpiredEntries() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	removed := 0

	for key, entry := range m.data {
		entry.mu.Lock()
		if entry.window > 0 && !now.Before(entry.windowStart.Add(entry.window)) {
			entry.evicted = true
			delete(m.data, key)
			removed++
		}
		entry.mu.Unlock()
	}

	if removed > 0 && m.logger != nil {
		m.logger.Debug("Memory storage cleanup completed", map[string]interface{}{
			"removed_entries": removed,
		})
	}
}

// GetStats retorna estatísticas do storage em memória
func (m *MemoryStorage) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"data_entries": len(m.data),
		"type":         string(BackendMemory),
	}
}

// logStorageOperation registra operações de storage
func (m *MemoryStorage) logStorageOperation(operation, key string, success bool, latency float64, err error) {
	logOperation(m.logger, operation, key, success, latency, err)
}
