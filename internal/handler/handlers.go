package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dashboard-api/internal/domain"
	"dashboard-api/internal/logger"
	"dashboard-api/internal/middleware"
)

const serviceName = "Dashboard API"

// maxJSONBody limita os corpos JSON aceitos pelos handlers
const maxJSONBody int64 = 64 << 10

// HealthChecker é implementado pelos colaboradores que expõem health check
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies reúne os colaboradores dos handlers
type Dependencies struct {
	Guard         *middleware.Guard
	Data          domain.DataService
	Activity      domain.ActivityService
	Limiter       domain.RateLimiter
	LimiterHealth HealthChecker
	Policies      domain.PolicySet
	Environment   string
	Logger        domain.Logger
}

// Handlers contém os handlers da API
type Handlers struct {
	guard         *middleware.Guard
	data          domain.DataService
	activity      domain.ActivityService
	limiter       domain.RateLimiter
	limiterHealth HealthChecker
	policies      domain.PolicySet
	environment   string
	logger        domain.Logger
	startTime     time.Time
	now           func() time.Time
}

// NewHandlers cria uma nova instância dos handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		guard:         deps.Guard,
		data:          deps.Data,
		activity:      deps.Activity,
		limiter:       deps.Limiter,
		limiterHealth: deps.LimiterHealth,
		policies:      deps.Policies,
		environment:   deps.Environment,
		logger:        deps.Logger,
		startTime:     time.Now(),
		now:           time.Now,
	}
}

// route descreve um endpoint protegido
type route struct {
	path    string
	methods []string
	policy  domain.Policy
	handler middleware.SecureHandler
}

func (h *Handlers) routes() []route {
	user := h.policies.User
	admin := h.policies.Admin

	return []route{
		{"/api/database/communities", []string{http.MethodGet}, user.Named("communities"), h.CommunitiesHandler},
		{"/api/database/subreddits", []string{http.MethodGet}, user.Named("subreddits"), h.SubredditsHandler},
		{"/api/database/opportunities-list", []string{http.MethodGet}, user.Named("opportunities-list"), h.OpportunitiesListHandler},
		{"/api/database/opportunity-details", []string{http.MethodGet}, user.Named("opportunity-details"), h.OpportunityDetailsHandler},
		{"/api/database/analytics", []string{http.MethodGet}, user.Named("analytics"), h.AnalyticsHandler},
		{"/api/database/admin", []string{http.MethodGet}, admin.Named("admin-data"), h.AdminDataHandler},
		{"/api/user/activity-history", []string{http.MethodGet, http.MethodDelete}, user.Named("activity-history"), h.ActivityHistoryHandler},
		{"/api/user/dashboard-data", []string{http.MethodGet}, user.Named("dashboard-data"), h.DashboardDataHandler},
		{"/api/user/bookmarks", []string{http.MethodGet, http.MethodPost, http.MethodDelete}, user.Named("bookmarks"), h.BookmarksHandler},
		{"/api/user/track-activity", []string{http.MethodPost}, user.Named("track-activity"), h.TrackActivityHandler},
		{"/admin/rate-limits/status", []string{http.MethodGet}, admin.Named("rate-limit-status"), h.AdminStatusHandler},
		{"/admin/rate-limits/reset", []string{http.MethodPost}, admin.Named("rate-limit-reset"), h.AdminResetHandler},
		{"/metrics", []string{http.MethodGet}, admin.Named("metrics"), h.MetricsHandler},
		{"/health", []string{http.MethodGet}, h.policies.Public.Named("health"), h.HealthHandler},
	}
}

// SetupRoutes registra todas as rotas atrás do guard; cada rota também
// responde OPTIONS com a mesma política
func (h *Handlers) SetupRoutes(router *gin.Engine) error {
	if h.guard == nil {
		return fmt.Errorf("guard is required")
	}

	for _, r := range h.routes() {
		secured, err := h.guard.Secure(r.policy, r.handler)
		if err != nil {
			return fmt.Errorf("route %s: %w", r.path, err)
		}
		for _, method := range r.methods {
			router.Handle(method, r.path, secured)
		}
		router.OPTIONS(r.path, secured)
	}

	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		middleware.WriteError(c, domain.NewMethodNotAllowedError())
	})
	router.NoRoute(func(c *gin.Context) {
		middleware.WriteError(c, domain.NewNotFoundError("Route not found"))
	})

	return nil
}

// respond escreve o envelope padrão de sucesso
func (h *Handlers) respond(c *gin.Context, rc *domain.RequestContext, endpoint string, data interface{}, extra gin.H) {
	body := gin.H{
		"success": true,
		"data":    data,
		"meta":    h.meta(rc, endpoint),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) meta(rc *domain.RequestContext, endpoint string) gin.H {
	return gin.H{
		"timestamp":     h.now().UTC().Format(time.RFC3339),
		"requestedBy":   rc.UserID(),
		"securityLevel": rc.SecurityLevel(),
		"endpoint":      endpoint,
	}
}

// fail registra a falha do colaborador e responde um 500 genérico
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	if h.logger != nil {
		h.logger.WithContext(c.Request.Context()).Error(msg, err, map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	}
	middleware.WriteError(c, domain.NewUpstreamFailureError())
}

// bindJSON decodifica o corpo limitado a maxJSONBody.
// Retorna false após escrever a resposta quando o corpo excede o limite.
func bindJSON(c *gin.Context, target interface{}) (bool, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody)
	err := c.ShouldBindJSON(target)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteError(c, domain.NewBodyTooLargeError(tooLarge.Limit))
		return false, err
	}
	return true, err
}

// HealthHandler verifica o storage de rate limit e a camada de dados
func (h *Handlers) HealthHandler(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()

	checks := gin.H{}
	healthy := true
	for name, checker := range map[string]HealthChecker{"storage": h.limiterHealth, "database": h.data} {
		if checker == nil {
			continue
		}
		if err := checker.Health(ctx); err != nil {
			healthy = false
			checks[name] = "unhealthy"
			if h.logger != nil {
				h.logger.WithContext(ctx).Warn("Health check failed", map[string]interface{}{
					"component": name,
					"error":     err.Error(),
				})
			}
			continue
		}
		checks[name] = "healthy"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"service":   serviceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// MetricsHandler expõe uptime, runtime e os contadores do guard
func (h *Handlers) MetricsHandler(c *gin.Context, rc *domain.RequestContext) {
	ctx := c.Request.Context()

	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	storageStatus := "healthy"
	if h.limiterHealth != nil {
		if err := h.limiterHealth.Health(ctx); err != nil {
			storageStatus = "unhealthy"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"service":        serviceName,
		"timestamp":      h.now().UTC().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"uptime_seconds": int64(uptime.Seconds()),
		"environment":    h.environment,
		"storage":        storageStatus,
		"guard":          h.guard.Stats().Snapshot(),
		"system": gin.H{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": formatBytes(m.Alloc),
			"memory_total": formatBytes(m.TotalAlloc),
			"memory_sys":   formatBytes(m.Sys),
			"gc_runs":      m.NumGC,
		},
	})
}

// queryInt lê um inteiro da query; ok é false quando o valor é inválido
func queryInt(c *gin.Context, name string, fallback int) (value int, ok bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, false
	}
	return parsed, true
}

// queryID lê um id positivo da query
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// formatBytes formata bytes em formato legível
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + "KMGTPE"[exp:exp+1] + "B"
}

// maskKey mascara chaves antes de devolvê-las ou registrá-las
func maskKey(key string) string {
	return logger.MaskKey(key)
}
