package domain

import (
	"context"
	"net/http"
	"time"
)

// RateLimiterStorage define a interface para armazenamento dos contadores
// Implementa o Strategy Pattern (memória ou Redis)
type RateLimiterStorage interface {
	// Admit incrementa atomicamente o contador da janela corrente se ainda
	// houver cota; retorna o estado após a decisão
	Admit(ctx context.Context, key string, max int, window time.Duration) (*RateLimitStatus, bool, error)

	// Get recupera o estado atual de uma chave (nil quando inexistente)
	Get(ctx context.Context, key string) (*RateLimitStatus, error)

	// Reset limpa os dados de uma chave
	Reset(ctx context.Context, key string) error

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close libera os recursos do storage
	Close() error
}

// RateLimiter define o serviço de rate limiting consumido pelo guard
type RateLimiter interface {
	// Admit nunca retorna erro: falhas internas resultam em negação
	Admit(ctx context.Context, scope Scope, key string, limit *RateLimit) AdmitResult

	// Status retorna um contador por limite conhecido da chave
	Status(ctx context.Context, scope Scope, key string) ([]*RateLimitStatus, error)

	// Reset limpa a chave em todos os limites conhecidos
	Reset(ctx context.Context, scope Scope, key string) error
}

// IdentityResolver resolve a identidade a partir das credenciais da requisição.
// Ausência ou invalidez de credenciais retorna (nil, nil); erro indica falha
// de verificação e deve resultar em negação.
type IdentityResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Identity, error)
}

// AdminDirectory consulta se um usuário possui privilégios administrativos
type AdminDirectory interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// DataService expõe as consultas somente-leitura do dashboard
type DataService interface {
	ListSubreddits(ctx context.Context, limit int) (*SubredditList, error)
	ListOpportunities(ctx context.Context, subredditID int64, query OpportunityQuery) (*OpportunityPage, error)
	GetOpportunity(ctx context.Context, id int64) (*Opportunity, error)
	GetAnalytics(ctx context.Context) (*Analytics, error)
	Health(ctx context.Context) error
}

// ActivityService expõe o histórico de ações e os bookmarks do usuário
type ActivityService interface {
	TrackActivity(ctx context.Context, activity Activity) error
	ActivityHistory(ctx context.Context, userID string, query ActivityQuery) ([]Activity, error)
	ActivityCount(ctx context.Context, userID string) (int, error)
	ClearActivity(ctx context.Context, userID string) error
	AddBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error)
	RemoveBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error)
	IsBookmarked(ctx context.Context, userID string, opportunityID int64) (bool, error)
	BookmarkedOpportunities(ctx context.Context, userID string, limit int) ([]Opportunity, error)
	DashboardData(ctx context.Context, userID string, daysBack int) (*DashboardData, error)
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}
