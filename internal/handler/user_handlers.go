package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dashboard-api/internal/domain"
	"dashboard-api/internal/middleware"
)

const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 100
	defaultDashboardDays = 2
	maxDashboardDays     = 365
	maxBookmarkList      = 50

	cachePrivate = "private, no-cache"
)

// ActivityView é uma atividade com o texto de tempo relativo
type ActivityView struct {
	domain.Activity
	TimeText string `json:"timeText"`
}

// ActivityHistoryHandler lista (GET) ou apaga (DELETE) o histórico do usuário
func (h *Handlers) ActivityHistoryHandler(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()
	userID := rc.UserID()

	switch c.Request.Method {
	case http.MethodGet:
		limit, ok := queryInt(c, "limit", defaultHistoryLimit)
		if !ok || limit <= 0 {
			limit = defaultHistoryLimit
		}
		limit = clamp(limit, 1, maxHistoryLimit)

		offset, ok := queryInt(c, "offset", 0)
		if !ok || offset < 0 {
			offset = 0
		}

		activities, err := h.activity.ActivityHistory(ctx, userID, domain.ActivityQuery{Limit: limit, Offset: offset})
		if err != nil {
			h.fail(c, "Failed to load activity history", err)
			return
		}
		total, err := h.activity.ActivityCount(ctx, userID)
		if err != nil {
			h.fail(c, "Failed to count activity", err)
			return
		}

		now := h.now()
		views := make([]ActivityView, 0, len(activities))
		for _, activity := range activities {
			views = append(views, ActivityView{Activity: activity, TimeText: relativeTime(now, activity.Timestamp)})
		}

		h.respond(c, rc, "activity-history", gin.H{
			"activities": views,
			"totalCount": total,
			"hasMore":    offset+len(activities) < total,
		}, nil)

	case http.MethodDelete:
		if err := h.activity.ClearActivity(ctx, userID); err != nil {
			h.fail(c, "Failed to clear activity history", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Activity history cleared successfully",
		})

	default:
		c.Header("Allow", "GET, DELETE")
		middleware.WriteError(c, domain.NewMethodNotAllowedError())
	}
}

// DashboardDataHandler resume a atividade recente; days fica entre 1 e 365
func (h *Handlers) DashboardDataHandler(c *gin.Context, rc *domain.RequestContext) {
	days, ok := queryInt(c, "days", defaultDashboardDays)
	if !ok {
		days = defaultDashboardDays
	}
	days = clamp(days, 1, maxDashboardDays)

	data, err := h.activity.DashboardData(c.Request.Context(), rc.UserID(), days)
	if err != nil {
		h.fail(c, "Failed to load dashboard data", err)
		return
	}

	c.Header("Cache-Control", cachePrivate)
	h.respond(c, rc, "dashboard-data", data, nil)
}

// bookmarkRequest é o corpo do POST de bookmarks
type bookmarkRequest struct {
	OpportunityID *int64 `json:"opportunityId"`
}

// BookmarksHandler consulta, adiciona e remove bookmarks
func (h *Handlers) BookmarksHandler(c *gin.Context, rc *domain.RequestContext) {
	switch c.Request.Method {
	case http.MethodGet:
		h.getBookmarks(c, rc)
	case http.MethodPost:
		h.addBookmark(c, rc)
	case http.MethodDelete:
		h.removeBookmark(c, rc)
	default:
		middleware.WriteError(c, domain.NewMethodNotAllowedError())
	}
}

func (h *Handlers) getBookmarks(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()
	userID := rc.UserID()

	if _, present := c.GetQuery("opportunityId"); present {
		id, ok := queryID(c, "opportunityId")
		if !ok {
			middleware.WriteError(c, domain.NewMalformedInputError("INVALID_OPPORTUNITY_ID", "Missing or invalid opportunityId"))
			return
		}
		bookmarked, err := h.activity.IsBookmarked(ctx, userID, id)
		if err != nil {
			h.fail(c, "Failed to check bookmark", err)
			return
		}
		h.respond(c, rc, "check-bookmark", gin.H{"isBookmarked": bookmarked, "opportunityId": id}, nil)
		return
	}

	opportunities, err := h.activity.BookmarkedOpportunities(ctx, userID, maxBookmarkList)
	if err != nil {
		h.fail(c, "Failed to list bookmarks", err)
		return
	}
	ids := make([]int64, 0, len(opportunities))
	for _, opp := range opportunities {
		ids = append(ids, opp.ID)
	}

	h.respond(c, rc, "list-bookmarks", gin.H{
		"bookmarkIds":   ids,
		"count":         len(ids),
		"opportunities": opportunities,
	}, nil)
}

func (h *Handlers) addBookmark(c *gin.Context, rc *domain.RequestContext) {
	var req bookmarkRequest
	ok, err := bindJSON(c, &req)
	if !ok {
		return
	}
	if err != nil || req.OpportunityID == nil || *req.OpportunityID <= 0 {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_OPPORTUNITY_ID", "Missing or invalid opportunityId"))
		return
	}
	id := *req.OpportunityID

	added, err := h.activity.AddBookmark(c.Request.Context(), rc.UserID(), id)
	if errors.Is(err, domain.ErrOpportunityNotFound) {
		middleware.WriteError(c, domain.NewNotFoundError("Opportunity not found"))
		return
	}
	if err != nil {
		h.fail(c, "Failed to add bookmark", err)
		return
	}

	h.respond(c, rc, "add-bookmark", gin.H{
		"bookmarked":           true,
		"wasAlreadyBookmarked": !added,
		"opportunityId":        id,
	}, nil)
}

func (h *Handlers) removeBookmark(c *gin.Context, rc *domain.RequestContext) {
	id, ok := queryID(c, "opportunityId")
	if !ok {
		middleware.WriteError(c, domain.NewMalformedInputError("MISSING_OPPORTUNITY_ID", "Missing opportunityId parameter"))
		return
	}

	removed, err := h.activity.RemoveBookmark(c.Request.Context(), rc.UserID(), id)
	if err != nil {
		h.fail(c, "Failed to remove bookmark", err)
		return
	}

	h.respond(c, rc, "remove-bookmark", gin.H{
		"bookmarked":    false,
		"wasBookmarked": removed,
		"opportunityId": id,
	}, nil)
}

// trackActivityRequest é o corpo do POST de atividades
type trackActivityRequest struct {
	ActivityType string                 `json:"activityType"`
	ResourceID   interface{}            `json:"resourceId"`
	ResourceType string                 `json:"resourceType"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// TrackActivityHandler registra uma ação do usuário
func (h *Handlers) TrackActivityHandler(c *gin.Context, rc *domain.RequestContext) {
	var req trackActivityRequest
	ok, err := bindJSON(c, &req)
	if !ok {
		return
	}
	if err != nil {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_BODY", "Request body must be valid JSON"))
		return
	}
	if strings.TrimSpace(req.ActivityType) == "" {
		middleware.WriteError(c, domain.NewMalformedInputError("MISSING_ACTIVITY_TYPE", "Missing activityType"))
		return
	}

	err = h.activity.TrackActivity(c.Request.Context(), domain.Activity{
		UserID:       rc.UserID(),
		ActivityType: strings.TrimSpace(req.ActivityType),
		ResourceID:   resourceIDString(req.ResourceID),
		ResourceType: req.ResourceType,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.fail(c, "Failed to track activity", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Activity tracked successfully",
		"meta":    h.meta(rc, "track-activity"),
	})
}

// resourceIDString aceita ids numéricos ou textuais
func resourceIDString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// relativeTime formata o tempo decorrido como no dashboard
func relativeTime(now, ts time.Time) string {
	diff := now.Sub(ts)
	minutes := int(diff / time.Minute)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	default:
		return ts.Format("Jan 2")
	}
}
