package database

import (
	"fmt"
	"strings"
	"time"

	"dashboard-api/internal/domain"
)

// Valores padrão da listagem de oportunidades
const (
	DefaultOpportunityPage  = 1
	DefaultOpportunityLimit = 9
	MaxOpportunityLimit     = 50
	DefaultOpportunityDays  = 30

	// MaxOpportunityPage mantém (page-1)*limit longe de overflow
	MaxOpportunityPage = 10000
	MaxOpportunityDays = 3650
)

// NormalizeOpportunityQuery aplica os padrões e limites da listagem
func NormalizeOpportunityQuery(q domain.OpportunityQuery) domain.OpportunityQuery {
	if q.Page < 1 {
		q.Page = DefaultOpportunityPage
	}
	if q.Page > MaxOpportunityPage {
		q.Page = MaxOpportunityPage
	}
	if q.Limit <= 0 {
		q.Limit = DefaultOpportunityLimit
	}
	if q.Limit > MaxOpportunityLimit {
		q.Limit = MaxOpportunityLimit
	}
	if q.Days <= 0 {
		q.Days = DefaultOpportunityDays
	}
	if q.Days > MaxOpportunityDays {
		q.Days = MaxOpportunityDays
	}
	if q.SortBy != domain.SortByDate {
		q.SortBy = domain.SortByImpactScore
	}
	if q.SortOrder != domain.SortAsc {
		q.SortOrder = domain.SortDesc
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// opportunityFilter monta o WHERE compartilhado entre a contagem e a página
func opportunityFilter(subredditID int64, q domain.OpportunityQuery, since time.Time) (string, []interface{}) {
	args := []interface{}{subredditID, since}
	where := "WHERE subreddit_id = $1 AND created_at >= $2"

	if q.Search != "" {
		args = append(args, "%"+strings.ToLower(q.Search)+"%")
		n := len(args)
		where += fmt.Sprintf(
			" AND (LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d OR EXISTS (SELECT 1 FROM unnest(keywords) k WHERE LOWER(k) LIKE $%d))",
			n, n, n,
		)
	}
	return where, args
}

// buildOpportunityListSQL retorna a consulta paginada e a contagem total
func buildOpportunityListSQL(subredditID int64, q domain.OpportunityQuery, since time.Time) (list string, count string, args []interface{}) {
	where, args := opportunityFilter(subredditID, q, since)

	column := "impact_score"
	if q.SortBy == domain.SortByDate {
		column = "created_at"
	}
	direction := "DESC"
	if q.SortOrder == domain.SortAsc {
		direction = "ASC"
	}

	count = "SELECT COUNT(*) FROM business_opportunities " + where

	n := len(args)
	list = fmt.Sprintf(
		"SELECT id, subreddit_id, title, description, keywords, impact_score, created_at FROM business_opportunities %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		where, column, direction, direction, n+1, n+2,
	)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)
	return list, count, args
}
