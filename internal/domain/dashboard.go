package domain

import (
	"errors"
	"time"
)

// Erros dos colaboradores de dados
var (
	ErrOpportunityNotFound = errors.New("opportunity not found")
	ErrInvalidActivity     = errors.New("invalid activity")
)

// Subreddit representa uma comunidade monitorada
type Subreddit struct {
	ID                     int64   `json:"id"`
	Name                   string  `json:"name"`
	DisplayName            string  `json:"displayName"`
	SubscriberCount        int64   `json:"subscriberCount"`
	TotalPosts             int     `json:"totalPosts"`
	TotalComments          int     `json:"totalComments"`
	OpportunityCount       int     `json:"opportunityCount"`
	AvgBusinessImpactScore float64 `json:"avgBusinessImpactScore"`
	IconPath               string  `json:"iconPath,omitempty"`
}

// SubredditList é o resultado paginado de comunidades
type SubredditList struct {
	Subreddits []Subreddit `json:"subreddits"`
	TotalCount int         `json:"totalCount"`
}

// Opportunity representa uma oportunidade de negócio extraída de uma comunidade
type Opportunity struct {
	ID          int64     `json:"id"`
	SubredditID int64     `json:"subredditId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	ImpactScore float64   `json:"impactScore"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ordenações aceitas na listagem de oportunidades
const (
	SortByImpactScore = "impact_score"
	SortByDate        = "date"
	SortAsc           = "asc"
	SortDesc          = "desc"
)

// OpportunityQuery contém os filtros da listagem de oportunidades
type OpportunityQuery struct {
	Days      int    `json:"days"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
	Search    string `json:"search,omitempty"`
}

// Pagination descreve a página retornada
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination calcula os campos derivados da paginação
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// OpportunityPage é uma página de oportunidades
type OpportunityPage struct {
	Data       []Opportunity    `json:"data"`
	Pagination Pagination       `json:"pagination"`
	Filters    OpportunityQuery `json:"filters"`
}

// Analytics agrega indicadores gerais do dashboard
type Analytics struct {
	TotalSubreddits    int         `json:"totalSubreddits"`
	TotalOpportunities int         `json:"totalOpportunities"`
	AvgImpactScore     float64     `json:"avgImpactScore"`
	TopCommunities     []Subreddit `json:"topCommunities"`
	GeneratedAt        time.Time   `json:"generatedAt"`
}

// Activity é uma ação registrada no histórico do usuário
type Activity struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"userId"`
	ActivityType string                 `json:"activityType"`
	ResourceID   string                 `json:"resourceId,omitempty"`
	ResourceType string                 `json:"resourceType,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ActivityQuery pagina o histórico de atividades
type ActivityQuery struct {
	Limit  int
	Offset int
}

// DashboardData resume a atividade recente do usuário
type DashboardData struct {
	DaysBack       int           `json:"daysBack"`
	BookmarkCount  int           `json:"bookmarkCount"`
	ActivityCount  int           `json:"activityCount"`
	RecentActivity []Activity    `json:"recentActivity"`
	Bookmarked     []Opportunity `json:"bookmarked"`
}
