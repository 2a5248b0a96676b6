package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dashboard-api/internal/database"
	"dashboard-api/internal/domain"
	"dashboard-api/internal/middleware"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50

	cacheReadMostly = "public, max-age=600"
	cacheAnalytics  = "public, max-age=600, s-maxage=600"
)

// Community é a visão de uma comunidade exibida no dashboard
type Community struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	DisplayName     string  `json:"displayName"`
	Description     string  `json:"description"`
	SubscriberCount int64   `json:"subscriberCount"`
	MemberCount     string  `json:"memberCount"`
	Posts           int     `json:"posts"`
	Comments        int     `json:"comments"`
	Opportunities   int     `json:"opportunities"`
	AvgScore        float64 `json:"avgScore"`
	IconPath        string  `json:"iconPath,omitempty"`
}

func newCommunity(sub domain.Subreddit) Community {
	return Community{
		ID:              sub.ID,
		Name:            "r/" + sub.Name,
		DisplayName:     sub.DisplayName,
		Description:     fmt.Sprintf("Discussions about %s and related topics", strings.ToLower(sub.DisplayName)),
		SubscriberCount: sub.SubscriberCount,
		MemberCount:     formatCount(sub.SubscriberCount),
		Posts:           sub.TotalPosts,
		Comments:        sub.TotalComments,
		Opportunities:   sub.OpportunityCount,
		AvgScore:        sub.AvgBusinessImpactScore,
		IconPath:        sub.IconPath,
	}
}

// listLimit lê o limite das listagens de comunidades
func listLimit(c *gin.Context) int {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok || limit <= 0 {
		limit = defaultListLimit
	}
	return clamp(limit, 1, maxListLimit)
}

// CommunitiesHandler lista as comunidades com oportunidades ativas
func (h *Handlers) CommunitiesHandler(c *gin.Context, rc *domain.RequestContext) {
	result, err := h.data.ListSubreddits(c.Request.Context(), listLimit(c))
	if err != nil {
		h.fail(c, "Failed to list communities", err)
		return
	}

	communities := make([]Community, 0, len(result.Subreddits))
	for _, sub := range result.Subreddits {
		communities = append(communities, newCommunity(sub))
	}

	meta := h.meta(rc, "communities")
	meta["filter"] = "Only showing communities with active business opportunities"

	c.Header("Cache-Control", cacheReadMostly)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       communities,
		"totalCount": result.TotalCount,
		"meta":       meta,
	})
}

// SubredditsHandler lista as comunidades no formato bruto
func (h *Handlers) SubredditsHandler(c *gin.Context, rc *domain.RequestContext) {
	result, err := h.data.ListSubreddits(c.Request.Context(), listLimit(c))
	if err != nil {
		h.fail(c, "Failed to list subreddits", err)
		return
	}

	c.Header("Cache-Control", cacheReadMostly)
	h.respond(c, rc, "subreddits", result.Subreddits, gin.H{"totalCount": result.TotalCount})
}

// parseOpportunityQuery valida os parâmetros da listagem de oportunidades
func parseOpportunityQuery(c *gin.Context) (int64, domain.OpportunityQuery, *domain.GuardError) {
	var q domain.OpportunityQuery

	subredditID, ok := queryID(c, "subredditId")
	if !ok {
		return 0, q, domain.NewMalformedInputError("INVALID_SUBREDDIT_ID", "Valid subredditId parameter is required")
	}

	page, ok := queryInt(c, "page", database.DefaultOpportunityPage)
	if !ok || page <= 0 {
		return 0, q, domain.NewMalformedInputError("INVALID_PAGE", "Page must be a positive integer")
	}

	limit, ok := queryInt(c, "limit", database.DefaultOpportunityLimit)
	if !ok || limit <= 0 {
		return 0, q, domain.NewMalformedInputError("INVALID_LIMIT", "Limit must be a positive integer")
	}

	days, ok := queryInt(c, "days", database.DefaultOpportunityDays)
	if !ok || days <= 0 {
		return 0, q, domain.NewMalformedInputError("INVALID_DAYS", "Days must be a positive integer")
	}

	sortBy := c.DefaultQuery("sortBy", domain.SortByImpactScore)
	if sortBy != domain.SortByImpactScore && sortBy != domain.SortByDate {
		return 0, q, domain.NewMalformedInputError("INVALID_SORT_BY", "sortBy must be 'impact_score' or 'date'")
	}

	sortOrder := c.DefaultQuery("sortOrder", domain.SortDesc)
	if sortOrder != domain.SortAsc && sortOrder != domain.SortDesc {
		return 0, q, domain.NewMalformedInputError("INVALID_SORT_ORDER", "sortOrder must be 'asc' or 'desc'")
	}

	q = database.NormalizeOpportunityQuery(domain.OpportunityQuery{
		Days:      days,
		Page:      page,
		Limit:     limit,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Search:    c.Query("search"),
	})
	return subredditID, q, nil
}

// OpportunitiesListHandler lista as oportunidades de uma comunidade
func (h *Handlers) OpportunitiesListHandler(c *gin.Context, rc *domain.RequestContext) {
	subredditID, query, gerr := parseOpportunityQuery(c)
	if gerr != nil {
		middleware.WriteError(c, gerr)
		return
	}

	page, err := h.data.ListOpportunities(c.Request.Context(), subredditID, query)
	if err != nil {
		h.fail(c, "Failed to list opportunities", err)
		return
	}

	c.Header("Cache-Control", cacheReadMostly)
	h.respond(c, rc, "opportunities-list", page.Data, gin.H{
		"pagination": page.Pagination,
		"filters":    page.Filters,
	})
}

// OpportunityDetailsHandler retorna uma oportunidade pelo id
func (h *Handlers) OpportunityDetailsHandler(c *gin.Context, rc *domain.RequestContext) {
	id, ok := queryID(c, "id")
	if !ok {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_OPPORTUNITY_ID", "Missing or invalid id parameter"))
		return
	}

	opportunity, err := h.data.GetOpportunity(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to load opportunity", err)
		return
	}
	if opportunity == nil {
		middleware.WriteError(c, domain.NewNotFoundError("Opportunity not found"))
		return
	}

	meta := h.meta(rc, "opportunity-details")
	meta["id"] = id
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    opportunity,
		"meta":    meta,
	})
}

// AnalyticsHandler retorna os indicadores gerais
func (h *Handlers) AnalyticsHandler(c *gin.Context, rc *domain.RequestContext) {
	analytics, err := h.data.GetAnalytics(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to compute analytics", err)
		return
	}

	c.Header("Cache-Control", cacheAnalytics)
	h.respond(c, rc, "analytics", analytics, nil)
}

// AdminDataHandler confirma o acesso administrativo
func (h *Handlers) AdminDataHandler(c *gin.Context, rc *domain.RequestContext) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Admin data access granted",
		"adminId":     rc.UserID(),
		"clientIp":    rc.ClientIP,
		"environment": h.environment,
	})
}

// formatCount abrevia contagens grandes (1.5M, 210K)
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return trimDecimal(float64(n)/1_000_000) + "M"
	case n >= 1_000:
		return trimDecimal(float64(n)/1_000) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimDecimal(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}
