package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dashboard-api/internal/domain"

	"github.com/google/uuid"
)

const (
	defaultSubredditLimit = 20
	topCommunitiesLimit   = 5
	dashboardListLimit    = 10
)

type bookmark struct {
	opportunityID int64
	createdAt     time.Time
}

// MemoryStore implementa domain.DataService e domain.ActivityService em memória
type MemoryStore struct {
	mu            sync.RWMutex
	subreddits    []domain.Subreddit
	opportunities []domain.Opportunity
	activities    map[string][]domain.Activity
	bookmarks     map[string][]bookmark
	hasDataset    bool
	now           func() time.Time
}

// MemoryStoreOption customiza o MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithStoreClock substitui o relógio do store
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithDataset substitui o conjunto inicial de comunidades e oportunidades
func WithDataset(subreddits []domain.Subreddit, opportunities []domain.Opportunity) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.subreddits = append([]domain.Subreddit(nil), subreddits...)
		s.opportunities = append([]domain.Opportunity(nil), opportunities...)
		s.hasDataset = true
	}
}

// NewMemoryStore cria um store em memória populado com o dataset padrão
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		activities: make(map[string][]domain.Activity),
		bookmarks:  make(map[string][]bookmark),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if !store.hasDataset {
		store.subreddits, store.opportunities = DefaultDataset(store.now())
	}
	return store
}

// ListSubreddits retorna as comunidades com oportunidades ativas
func (s *MemoryStore) ListSubreddits(ctx context.Context, limit int) (*domain.SubredditList, error) {
	if limit <= 0 {
		limit = defaultSubredditLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.activeSubreddits()
	total := len(active)
	if len(active) > limit {
		active = active[:limit]
	}

	return &domain.SubredditList{Subreddits: active, TotalCount: total}, nil
}

// activeSubreddits agrega as oportunidades por comunidade; chamador segura o lock
func (s *MemoryStore) activeSubreddits() []domain.Subreddit {
	counts := make(map[int64]int)
	scores := make(map[int64]float64)
	for _, opp := range s.opportunities {
		counts[opp.SubredditID]++
		scores[opp.SubredditID] += opp.ImpactScore
	}

	active := make([]domain.Subreddit, 0, len(s.subreddits))
	for _, sub := range s.subreddits {
		n := counts[sub.ID]
		if n == 0 {
			continue
		}
		sub.OpportunityCount = n
		sub.AvgBusinessImpactScore = roundScore(scores[sub.ID] / float64(n))
		active = append(active, sub)
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].OpportunityCount != active[j].OpportunityCount {
			return active[i].OpportunityCount > active[j].OpportunityCount
		}
		return active[i].Name < active[j].Name
	})
	return active
}

// ListOpportunities filtra, ordena e pagina as oportunidades de uma comunidade
func (s *MemoryStore) ListOpportunities(ctx context.Context, subredditID int64, query domain.OpportunityQuery) (*domain.OpportunityPage, error) {
	query = NormalizeOpportunityQuery(query)
	since := s.now().AddDate(0, 0, -query.Days)
	search := strings.ToLower(strings.TrimSpace(query.Search))

	s.mu.RLock()
	matched := make([]domain.Opportunity, 0)
	for _, opp := range s.opportunities {
		if opp.SubredditID != subredditID || opp.CreatedAt.Before(since) {
			continue
		}
		if search != "" && !matchesSearch(opp, search) {
			continue
		}
		matched = append(matched, opp)
	}
	s.mu.RUnlock()

	sortOpportunities(matched, query.SortBy, query.SortOrder)

	total := len(matched)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	return &domain.OpportunityPage{
		Data:       matched[start:end],
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
		Filters:    query,
	}, nil
}

// GetOpportunity retorna nil quando a oportunidade não existe
func (s *MemoryStore) GetOpportunity(ctx context.Context, id int64) (*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, opp := range s.opportunities {
		if opp.ID == id {
			found := opp
			return &found, nil
		}
	}
	return nil, nil
}

// GetAnalytics calcula os indicadores gerais
func (s *MemoryStore) GetAnalytics(ctx context.Context) (*domain.Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.activeSubreddits()
	var sum float64
	for _, opp := range s.opportunities {
		sum += opp.ImpactScore
	}

	analytics := &domain.Analytics{
		TotalSubreddits:    len(s.subreddits),
		TotalOpportunities: len(s.opportunities),
		GeneratedAt:        s.now().UTC(),
	}
	if len(s.opportunities) > 0 {
		analytics.AvgImpactScore = roundScore(sum / float64(len(s.opportunities)))
	}
	if len(active) > topCommunitiesLimit {
		active = active[:topCommunitiesLimit]
	}
	analytics.TopCommunities = active

	return analytics, nil
}

// Health sempre responde; o store em memória não tem dependências externas
func (s *MemoryStore) Health(ctx context.Context) error {
	return ctx.Err()
}

// TrackActivity registra uma ação do usuário
func (s *MemoryStore) TrackActivity(ctx context.Context, activity domain.Activity) error {
	if activity.UserID == "" || activity.ActivityType == "" {
		return fmt.Errorf("user id and activity type are required: %w", domain.ErrInvalidActivity)
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities[activity.UserID] = append(s.activities[activity.UserID], activity)
	return nil
}

// ActivityHistory retorna o histórico do mais recente para o mais antigo
func (s *MemoryStore) ActivityHistory(ctx context.Context, userID string, query domain.ActivityQuery) ([]domain.Activity, error) {
	s.mu.RLock()
	history := s.sortedActivities(userID)
	s.mu.RUnlock()

	if query.Offset < 0 {
		query.Offset = 0
	}
	if query.Offset >= len(history) {
		return []domain.Activity{}, nil
	}
	history = history[query.Offset:]
	if query.Limit > 0 && len(history) > query.Limit {
		history = history[:query.Limit]
	}
	return history, nil
}

// sortedActivities copia e ordena o histórico; chamador segura o lock
func (s *MemoryStore) sortedActivities(userID string) []domain.Activity {
	history := append([]domain.Activity(nil), s.activities[userID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})
	return history
}

// ActivityCount retorna o total de ações registradas
func (s *MemoryStore) ActivityCount(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activities[userID]), nil
}

// ClearActivity apaga o histórico do usuário
func (s *MemoryStore) ClearActivity(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activities, userID)
	return nil
}

// AddBookmark retorna false quando a oportunidade já estava salva
func (s *MemoryStore) AddBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasOpportunity(opportunityID) {
		return false, fmt.Errorf("bookmark %d: %w", opportunityID, domain.ErrOpportunityNotFound)
	}
	for _, b := range s.bookmarks[userID] {
		if b.opportunityID == opportunityID {
			return false, nil
		}
	}
	s.bookmarks[userID] = append(s.bookmarks[userID], bookmark{opportunityID: opportunityID, createdAt: s.now().UTC()})
	return true, nil
}

// RemoveBookmark retorna true quando havia bookmark para remover
func (s *MemoryStore) RemoveBookmark(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.bookmarks[userID]
	for i, b := range current {
		if b.opportunityID == opportunityID {
			s.bookmarks[userID] = append(current[:i:i], current[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// IsBookmarked informa se a oportunidade está salva
func (s *MemoryStore) IsBookmarked(ctx context.Context, userID string, opportunityID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bookmarks[userID] {
		if b.opportunityID == opportunityID {
			return true, nil
		}
	}
	return false, nil
}

// BookmarkedOpportunities lista as oportunidades salvas, mais recentes primeiro
func (s *MemoryStore) BookmarkedOpportunities(ctx context.Context, userID string, limit int) ([]domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookmarkedLocked(userID, limit), nil
}

func (s *MemoryStore) bookmarkedLocked(userID string, limit int) []domain.Opportunity {
	saved := append([]bookmark(nil), s.bookmarks[userID]...)
	sort.SliceStable(saved, func(i, j int) bool {
		return saved[i].createdAt.After(saved[j].createdAt)
	})

	result := make([]domain.Opportunity, 0, len(saved))
	for _, b := range saved {
		if limit > 0 && len(result) >= limit {
			break
		}
		for _, opp := range s.opportunities {
			if opp.ID == b.opportunityID {
				result = append(result, opp)
				break
			}
		}
	}
	return result
}

// DashboardData resume a atividade dos últimos daysBack dias
func (s *MemoryStore) DashboardData(ctx context.Context, userID string, daysBack int) (*domain.DashboardData, error) {
	since := s.now().AddDate(0, 0, -daysBack)

	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]domain.Activity, 0)
	for _, activity := range s.sortedActivities(userID) {
		if activity.Timestamp.Before(since) {
			break
		}
		recent = append(recent, activity)
	}

	data := &domain.DashboardData{
		DaysBack:      daysBack,
		BookmarkCount: len(s.bookmarks[userID]),
		ActivityCount: len(recent),
		Bookmarked:    s.bookmarkedLocked(userID, dashboardListLimit),
	}
	if len(recent) > dashboardListLimit {
		recent = recent[:dashboardListLimit]
	}
	data.RecentActivity = recent

	return data, nil
}

func (s *MemoryStore) hasOpportunity(id int64) bool {
	for _, opp := range s.opportunities {
		if opp.ID == id {
			return true
		}
	}
	return false
}

func matchesSearch(opp domain.Opportunity, search string) bool {
	if strings.Contains(strings.ToLower(opp.Title), search) ||
		strings.Contains(strings.ToLower(opp.Description), search) {
		return true
	}
	for _, keyword := range opp.Keywords {
		if strings.Contains(strings.ToLower(keyword), search) {
			return true
		}
	}
	return false
}

func sortOpportunities(opps []domain.Opportunity, sortBy, sortOrder string) {
	less := func(i, j int) bool {
		if sortBy == domain.SortByDate {
			return opps[i].CreatedAt.Before(opps[j].CreatedAt)
		}
		return opps[i].ImpactScore < opps[j].ImpactScore
	}
	sort.SliceStable(opps, func(i, j int) bool {
		if sortOrder == domain.SortAsc {
			return less(i, j)
		}
		return less(j, i)
	})
}

func roundScore(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
