package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dashboard-api/internal/domain"
	"dashboard-api/internal/middleware"
)

// AdminStatusHandler retorna os contadores de uma chave de rate limit.
// Os campos de topo descrevem o contador mais ocupado, ou o bucket pedido em ?bucket=.
func (h *Handlers) AdminStatusHandler(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()

	key := strings.TrimSpace(c.Query("key"))
	scopeParam := strings.TrimSpace(c.Query("scope"))
	bucket := strings.TrimSpace(c.Query("bucket"))

	if h.logger != nil {
		h.logger.WithContext(ctx).Debug("Admin status endpoint accessed", map[string]interface{}{
			"key":      maskKey(key),
			"scope":    scopeParam,
			"bucket":   bucket,
			"admin_id": rc.UserID(),
		})
	}

	if key == "" {
		middleware.WriteError(c, domain.NewMalformedInputError("MISSING_KEY", "key parameter is required"))
		return
	}
	scope, err := domain.ParseScope(scopeParam)
	if err != nil {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_SCOPE", "scope must be 'user' or 'ip'"))
		return
	}

	statuses, err := h.limiter.Status(ctx, scope, key)
	if err != nil {
		h.fail(c, "Failed to get rate limit status", err)
		return
	}

	selected := busiestCounter(statuses, bucket)
	if selected == nil && bucket != "" {
		middleware.WriteError(c, domain.NewNotFoundError("No counter for bucket "+bucket))
		return
	}
	if selected == nil {
		selected = &domain.RateLimitStatus{}
	}

	counters := make([]gin.H, 0, len(statuses))
	for _, status := range statuses {
		counters = append(counters, counterView(status))
	}

	response := counterView(selected)
	response["key"] = maskKey(key)
	response["scope"] = string(scope)
	response["counters"] = counters
	response["timestamp"] = h.now().UTC().Format(time.RFC3339)

	c.JSON(http.StatusOK, response)
}

// busiestCounter escolhe o contador do bucket pedido ou o de maior ocupação
func busiestCounter(statuses []*domain.RateLimitStatus, bucket string) *domain.RateLimitStatus {
	var selected *domain.RateLimitStatus
	for _, status := range statuses {
		if bucket != "" {
			if status.Bucket == bucket {
				return status
			}
			continue
		}
		if selected == nil || usage(status) > usage(selected) {
			selected = status
		}
	}
	return selected
}

func usage(status *domain.RateLimitStatus) float64 {
	if status.Limit <= 0 {
		return 0
	}
	return float64(status.Count) / float64(status.Limit)
}

// counterView formata um contador para a resposta JSON
func counterView(status *domain.RateLimitStatus) gin.H {
	view := gin.H{
		"bucket":         status.Bucket,
		"limit":          status.Limit,
		"current":        status.Count,
		"remaining":      max(0, status.Limit-status.Count),
		"window_seconds": int(status.Window / time.Second),
	}
	if !status.WindowStart.IsZero() {
		view["reset_time"] = status.ResetAt().Unix()
	}
	return view
}

// AdminResetRequest representa o corpo da requisição para reset
type AdminResetRequest struct {
	Key   string `json:"key" binding:"required"`
	Scope string `json:"scope" binding:"required"`
}

// AdminResetHandler zera o contador de uma chave
func (h *Handlers) AdminResetHandler(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()

	var req AdminResetRequest
	ok, err := bindJSON(c, &req)
	if !ok {
		return
	}
	if err != nil {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_BODY", "key and scope are required"))
		return
	}

	req.Key = strings.TrimSpace(req.Key)
	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		middleware.WriteError(c, domain.NewMalformedInputError("INVALID_SCOPE", "scope must be 'user' or 'ip'"))
		return
	}
	if req.Key == "" {
		middleware.WriteError(c, domain.NewMalformedInputError("MISSING_KEY", "key is required"))
		return
	}

	if err := h.limiter.Reset(ctx, scope, req.Key); err != nil {
		h.fail(c, "Failed to reset rate limit", err)
		return
	}

	if h.logger != nil {
		h.logger.WithContext(ctx).Info("Rate limit reset by admin", map[string]interface{}{
			"key":      maskKey(req.Key),
			"scope":    string(scope),
			"admin_id": rc.UserID(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Rate limit reset successfully",
		"key":       maskKey(req.Key),
		"scope":     string(scope),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
