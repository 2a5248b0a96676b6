package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"dashboard-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var (
	pgxPoolNewWithConfig   = pgxpool.NewWithConfig
	postgresConnectRetries = 10
	postgresRetryDelay     = 2 * time.Second
	postgresPingTimeout    = 2 * time.Second
	postgresSleep          = time.Sleep
)

// NewPostgresPool abre o pool e aguarda o banco responder ao ping
func NewPostgresPool(ctx context.Context, dsn string, logger domain.Logger) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for attempt := 1; attempt <= postgresConnectRetries; attempt++ {
		pool, err := pgxPoolNewWithConfig(ctx, cfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if logger != nil {
			logger.Warn("Database not ready, retrying", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		if ctx.Err() != nil {
			break
		}
		postgresSleep(postgresRetryDelay)
	}
	return nil, fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

// PostgresStore implementa domain.DataService e domain.ActivityService no PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger domain.Logger
	now    func() time.Time
}

// NewPostgresStore cria o store sobre um pool já conectado
func NewPostgresStore(pool *pgxpool.Pool, logger domain.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}
}

// Migrate aplica o schema embutido; as instruções são idempotentes
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Seed insere comunidades e oportunidades ignorando as já existentes
func (s *PostgresStore) Seed(ctx context.Context, subreddits []domain.Subreddit, opportunities []domain.Opportunity) error {
	batch := &pgx.Batch{}
	for _, sub := range subreddits {
		batch.Queue(
			`INSERT INTO subreddits (id, name, display_name, subscriber_count, total_posts, total_comments, icon_path)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')) ON CONFLICT (id) DO NOTHING`,
			sub.ID, sub.Name, sub.DisplayName, sub.SubscriberCount, sub.TotalPosts, sub.TotalComments, sub.IconPath,
		)
	}
	for _, opp := range opportunities {
		keywords := opp.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		batch.Queue(
			`INSERT INTO business_opportunities (id, subreddit_id, title, description, keywords, impact_score, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			opp.ID, opp.SubredditID, opp.Title, opp.Description, keywords, opp.ImpactScore, opp.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to seed dataset: %w", err)
		}
	}
	return nil
}

// ListSubreddits retorna as comunidades com oportunidades ativas
func (s *PostgresStore) ListSubreddits(ctx context.Context, limit int) (*domain.SubredditList, error) {
	if limit <= 0 {
		limit = defaultSubredditLimit
	}

	subreddits, err := s.querySubreddits(ctx, limit)
	if err != nil {
		return nil, err
	}

	var total int
	err = s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT subreddit_id) FROM business_opportunities`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count subreddits: %w", err)
	}

	return &domain.SubredditList{Subreddits: subreddits, TotalCount: total}, nil
}

func (s *PostgresStore) querySubreddits(ctx context.Context, limit int) ([]domain.Subreddit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.name, s.display_name, s.subscriber_count, s.total_posts, s.total_comments,
		       COALESCE(s.icon_path, ''), COUNT(o.id), ROUND(AVG(o.impact_score)::numeric, 2)::float8
		FROM subreddits s
		JOIN business_opportunities o ON o.subreddit_id = s.id
		GROUP BY s.id
		ORDER BY COUNT(o.id) DESC, s.name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subreddits: %w", err)
	}
	defer rows.Close()

	subreddits := make([]domain.Subreddit, 0)
	for rows.Next() {
		var sub domain.Subreddit
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.DisplayName, &sub.SubscriberCount, &sub.TotalPosts,
			&sub.TotalComments, &sub.IconPath, &sub.OpportunityCount, &sub.AvgBusinessImpactScore); err != nil {
			return nil, fmt.Errorf("failed to scan subreddit: %w", err)
		}
		subreddits = append(subreddits, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subreddits: %w", err)
	}
	return subreddits, nil
}

// ListOpportunities filtra, ordena e pagina as oportunidades de uma comunidade
func (s *PostgresStore) ListOpportunities(ctx context.Context, subredditID int64, query domain.OpportunityQuery) (*domain.OpportunityPage, error) {
	query = NormalizeOpportunityQuery(query)
	since := s.now().AddDate(0, 0, -query.Days)
	listSQL, countSQL, args := buildOpportunityListSQL(subredditID, query, since)

	var total int
	// a contagem usa apenas os argumentos do filtro
	if err := s.pool.QueryRow(ctx, countSQL, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count opportunities: %w", err)
	}

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	opportunities, err := scanOpportunities(rows)
	if err != nil {
		return nil, err
	}

	return &domain.OpportunityPage{
		Data:       opportunities,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
		Filters:    query,
	}, nil
}

// GetOpportunity retorna nil quando a oportunidade não existe
func (s *PostgresStore) GetOpportunity(ctx context.Context, id int64) (*domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subreddit_id, title, description, keywords, impact_score, created_at
		FROM business_opportunities WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunity %d: %w", id, err)
	}
	opportunities, err := scanOpportunities(rows)
	if err != nil {
		return nil, err
	}
	if len(opportunities) == 0 {
		return nil, nil
	}
	return &opportunities[0], nil
}

// GetAnalytics calcula os indicadores gerais
func (s *PostgresStore) GetAnalytics(ctx context.Context) (*domain.Analytics, error) {
	analytics := &domain.Analytics{GeneratedAt: s.now().UTC()}

	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM subreddits),
		       COUNT(*),
		       COALESCE(ROUND(AVG(impact_score)::numeric, 2)::float8, 0)
		FROM business_opportunities`).Scan(&analytics.TotalSubreddits, &analytics.TotalOpportunities, &analytics.AvgImpactScore)
	if err != nil {
		return nil, fmt.Errorf("failed to compute analytics: %w", err)
	}

	top, err := s.querySubreddits(ctx, topCommunitiesLimit)
	if err != nil {
		return nil, err
	}
	analytics.TopCommunities = top

	return analytics, nil
}

// Health verifica a conexão com o banco
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close libera o pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// TrackActivity registra uma ação do usuário
func (s *PostgresStore) TrackActivity(ctx context.Context, activity domain.Activity) error {
	if activity.UserID == "" || activity.ActivityType == "" {
		return fmt.Errorf("user id and activity type are required: %w", domain.ErrInvalidActivity)
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = s.now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_activity (id, user_id, activity_type, resource_id, resource_type, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`,
		activity.ID, activity.UserID, activity.ActivityType, activity.ResourceID, activity.ResourceType,
		activity.Metadata, activity.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to track activity: %w", err)
	}
	return nil
}

// ActivityHistory retorna o histórico do mais recente para o mais antigo
func (s *PostgresStore) ActivityHistory(ctx context.Context, userID string, query domain.ActivityQuery) ([]domain.Activity, error) {
	if query.Offset < 0 {
		query.Offset = 0
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, activitySelect+`
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity history: %w", err)
	}
	return scanActivities(rows)
}

// ActivityCount retorna o total de ações registradas
func (s *PostgresStore) ActivityCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_activity WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return count, nil
}

// ClearActivity apaga o histórico do usuário
func (s *PostgresStore) ClearActivity(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_activity WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear activity: %w", err)
	}
	return nil
}

// AddBookmark retorna false quando a oportunidade já estava salva
func (s *PostgresStore) AddBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM business_opportunities WHERE id = $1)`, opportunityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check opportunity: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("bookmark %d: %w", opportunityID, domain.ErrOpportunityNotFound)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_bookmarks (user_id, opportunity_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, opportunity_id) DO NOTHING`, userID, opportunityID, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add bookmark: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveBookmark retorna true quando havia bookmark para remover
func (s *PostgresStore) RemoveBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_bookmarks WHERE user_id = $1 AND opportunity_id = $2`, userID, opportunityID)
	if err != nil {
		return false, fmt.Errorf("failed to remove bookmark: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsBookmarked informa se a oportunidade está salva
func (s *PostgresStore) IsBookmarked(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_bookmarks WHERE user_id = $1 AND opportunity_id = $2)`,
		userID, opportunityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check bookmark: %w", err)
	}
	return exists, nil
}

// BookmarkedOpportunities lista as oportunidades salvas, mais recentes primeiro
func (s *PostgresStore) BookmarkedOpportunities(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = MaxOpportunityLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.subreddit_id, o.title, o.description, o.keywords, o.impact_score, o.created_at
		FROM user_bookmarks b
		JOIN business_opportunities o ON o.id = b.opportunity_id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	return scanOpportunities(rows)
}

// DashboardData resume a atividade dos últimos daysBack dias
func (s *PostgresStore) DashboardData(ctx context.Context, userID string, daysBack int) (*domain.DashboardData, error) {
	since := s.now().AddDate(0, 0, -daysBack)
	data := &domain.DashboardData{DaysBack: daysBack}

	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM user_bookmarks WHERE user_id = $1),
		       (SELECT COUNT(*) FROM user_activity WHERE user_id = $1 AND created_at >= $2)`,
		userID, since).Scan(&data.BookmarkCount, &data.ActivityCount)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize dashboard: %w", err)
	}

	rows, err := s.pool.Query(ctx, activitySelect+`
		WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`, userID, since, dashboardListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	if data.RecentActivity, err = scanActivities(rows); err != nil {
		return nil, err
	}

	if data.Bookmarked, err = s.BookmarkedOpportunities(ctx, userID, dashboardListLimit); err != nil {
		return nil, err
	}
	return data, nil
}

const activitySelect = `
	SELECT id::text, user_id, activity_type, COALESCE(resource_id, ''), COALESCE(resource_type, ''),
	       COALESCE(metadata, '{}'::jsonb), created_at
	FROM user_activity`

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	defer rows.Close()

	opportunities := make([]domain.Opportunity, 0)
	for rows.Next() {
		var opp domain.Opportunity
		if err := rows.Scan(&opp.ID, &opp.SubredditID, &opp.Title, &opp.Description, &opp.Keywords,
			&opp.ImpactScore, &opp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read opportunities: %w", err)
	}
	return opportunities, nil
}

func scanActivities(rows pgx.Rows) ([]domain.Activity, error) {
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(&activity.ID, &activity.UserID, &activity.ActivityType, &activity.ResourceID,
			&activity.ResourceType, &activity.Metadata, &activity.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activities: %w", err)
	}
	return activities, nil
}
