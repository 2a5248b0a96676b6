package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dashboard-api/internal/domain"
	"dashboard-api/internal/logger"
	"dashboard-api/internal/security"
)

const (
	// RequestIDHeader é o header de correlação das requisições
	RequestIDHeader = "X-Request-ID"

	// ContextKeyRequestID guarda o request id no gin.Context
	ContextKeyRequestID = "request_id"

	defaultStageTimeout = 5 * time.Second
)

// SecureHandler é o handler protegido; recebe o contexto já validado
type SecureHandler func(c *gin.Context, rc *domain.RequestContext)

// decisionLogger é implementado pelo logger estruturado
type decisionLogger interface {
	LogGuardDecision(endpoint string, kind domain.ErrorKind, scope domain.Scope, key string, fields map[string]interface{})
}

// Guard aplica a política de segurança de cada endpoint antes do handler
type Guard struct {
	limiter  domain.RateLimiter
	resolver domain.IdentityResolver
	cors     *security.CORSEvaluator
	proxies  *security.ProxyTrust
	logger   domain.Logger
	stats    *GuardStats

	redirectHost string
	stageTimeout time.Duration
	now          func() time.Time
}

// GuardOption customiza o Guard
type GuardOption func(*Guard)

// WithHTTPSRedirect redireciona GET/HEAD inseguros para https://<host> em vez de rejeitar.
// O Host da requisição nunca é usado; host vazio desativa o redirect.
func WithHTTPSRedirect(host string) GuardOption {
	return func(g *Guard) {
		g.redirectHost = strings.TrimSpace(host)
	}
}

// WithStageTimeout limita o tempo das consultas de identidade e rate limit
func WithStageTimeout(timeout time.Duration) GuardOption {
	return func(g *Guard) {
		if timeout > 0 {
			g.stageTimeout = timeout
		}
	}
}

// WithGuardClock substitui o relógio usado no cálculo de Retry-After
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard cria uma nova instância do guard
func NewGuard(
	limiter domain.RateLimiter,
	resolver domain.IdentityResolver,
	proxies *security.ProxyTrust,
	logger domain.Logger,
	opts ...GuardOption,
) *Guard {
	if proxies == nil {
		proxies = &security.ProxyTrust{}
	}

	g := &Guard{
		limiter:      limiter,
		resolver:     resolver,
		cors:         security.NewCORSEvaluator(),
		proxies:      proxies,
		logger:       logger,
		stats:        newGuardStats(),
		stageTimeout: defaultStageTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats retorna os contadores de decisões do guard
func (g *Guard) Stats() *GuardStats {
	return g.stats
}

// Secure valida a política e retorna o handler gin protegido.
// A política é copiada e não pode ser alterada depois do registro.
func (g *Guard) Secure(policy domain.Policy, handler SecureHandler) (gin.HandlerFunc, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid security policy: %w", err)
	}
	if handler == nil {
		return nil, fmt.Errorf("policy %s: handler cannot be nil", policy.Name)
	}
	if g.limiter == nil && (policy.UserRateLimit != nil || policy.IPRateLimit != nil) {
		return nil, fmt.Errorf("policy %s: rate limits require a limiter", policy.Name)
	}
	if g.resolver == nil && policy.Auth != domain.AuthNone {
		return nil, fmt.Errorf("policy %s: authentication requires an identity resolver", policy.Name)
	}

	registered := policy.Clone()
	return func(c *gin.Context) {
		g.handle(c, registered, handler)
	}, nil
}

// MustSecure é como Secure mas entra em pânico com política inválida
func (g *Guard) MustSecure(policy domain.Policy, handler SecureHandler) gin.HandlerFunc {
	h, err := g.Secure(policy, handler)
	if err != nil {
		panic(err)
	}
	return h
}

// handle executa os estágios na ordem: HTTPS, CORS, identidade,
// autenticação, admin, rate limit (usuário e IP) e despacho
func (g *Guard) handle(c *gin.Context, policy domain.Policy, handler SecureHandler) {
	requestID := g.requestID(c)
	c.Set(ContextKeyRequestID, requestID)

	clientIP, ipErr := security.ClientIP(c)
	ctx := logger.ContextWithRequestInfo(c.Request.Context(), requestID, clientIP, "", c.GetHeader("User-Agent"))
	log := g.logger.WithContext(ctx)

	if ipErr != nil {
		log.Warn("Client IP could not be determined", map[string]interface{}{
			"endpoint": policy.Name,
			"error":    ipErr.Error(),
		})
	}

	// 1. HTTPS
	if policy.HTTPSOnly && !g.proxies.IsSecure(c.Request) {
		method := c.Request.Method
		if g.redirectHost != "" && (method == http.MethodGet || method == http.MethodHead) {
			g.logDecision(log, policy.Name, domain.HTTPSRequired, "", "", map[string]interface{}{"redirect": true})
			g.stats.recordRejection(domain.HTTPSRequired)
			c.Redirect(http.StatusPermanentRedirect, "https://"+g.redirectHost+c.Request.URL.RequestURI())
			c.Abort()
			return
		}
		g.reject(c, log, policy, domain.NewHTTPSRequiredError(), "")
		return
	}

	// 2. CORS
	decision := g.cors.Evaluate(c.GetHeader("Origin"), policy.AllowedOrigins)
	if !decision.Allowed {
		g.reject(c, log, policy, domain.NewCORSRejectedError(), "")
		return
	}

	if security.IsPreflight(c.Request) {
		g.cors.ApplyPreflight(c.Writer.Header(), decision)
		g.stats.recordPreflight()
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	g.cors.ApplyOrigin(c.Writer.Header(), decision)

	// 3. Identidade
	var user *domain.Identity
	if policy.Auth != domain.AuthNone {
		stageCtx, cancel := context.WithTimeout(ctx, g.stageTimeout)
		identity, err := g.resolver.Resolve(stageCtx, c.Request)
		cancel()
		if err != nil {
			log.Error("Identity resolution failed", err, map[string]interface{}{
				"endpoint": policy.Name,
			})
			g.reject(c, log, policy, domain.NewUpstreamFailureError(), "")
			return
		}
		user = identity
	}

	// 4. Autenticação; em rotas admin a ausência de sessão é indistinguível de "não admin"
	if policy.Auth == domain.AuthRequired && user == nil {
		if policy.AdminOnly {
			g.reject(c, log, policy, domain.NewForbiddenError(), "")
		} else {
			g.reject(c, log, policy, domain.NewUnauthenticatedError(), "")
		}
		return
	}

	// 5. Admin
	if policy.AdminOnly && !user.IsAdmin {
		g.reject(c, log, policy, domain.NewForbiddenError(), user.ID)
		return
	}

	if user != nil {
		ctx = logger.ContextWithRequestInfo(ctx, requestID, clientIP, user.ID, c.GetHeader("User-Agent"))
		log = g.logger.WithContext(ctx)
	}

	// 6. Rate limit: usuário e depois IP
	var tightest *domain.AdmitResult
	checks := []struct {
		scope domain.Scope
		key   string
		limit *domain.RateLimit
	}{
		{scope: domain.UserScope, limit: policy.UserRateLimit},
		{scope: domain.IPScope, key: clientIP, limit: policy.IPRateLimit},
	}
	if user != nil {
		checks[0].key = user.ID
	} else {
		checks[0].limit = nil
	}

	for _, check := range checks {
		if check.limit == nil {
			continue
		}

		stageCtx, cancel := context.WithTimeout(ctx, g.stageTimeout)
		result := g.limiter.Admit(stageCtx, check.scope, check.key, check.limit)
		cancel()

		if !result.Allowed {
			g.setRateLimitHeaders(c, result)
			g.reject(c, log, policy, domain.NewRateLimitedError(check.scope, result.RetryAfter(g.now())), check.key)
			return
		}
		if result.Limited && (tightest == nil || result.Remaining < tightest.Remaining) {
			r := result
			tightest = &r
		}
	}

	if tightest != nil {
		g.setRateLimitHeaders(c, *tightest)
	}

	// 7. Despacho
	c.Request = c.Request.WithContext(ctx)
	rc := &domain.RequestContext{
		Request:    c.Request,
		User:       user,
		ClientIP:   clientIP,
		CORSOrigin: decision.HeaderOrigin,
		RequestID:  requestID,
	}

	g.stats.recordAdmission()
	g.logDecision(log, policy.Name, "", "", "", nil)

	g.dispatch(c, log, policy, handler, rc)
}

// dispatch executa o handler convertendo pânicos em 500
func (g *Guard) dispatch(c *gin.Context, log domain.Logger, policy domain.Policy, handler SecureHandler, rc *domain.RequestContext) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			log.Error("Handler panicked", fmt.Errorf("%v", recovered), map[string]interface{}{
				"endpoint": policy.Name,
			})
			g.stats.recordRejection(domain.InternalFault)
			if !c.Writer.Written() {
				WriteError(c, domain.NewInternalFaultError())
			} else {
				c.Abort()
			}
		}
	}()

	handler(c, rc)
}

// reject registra e escreve a rejeição
func (g *Guard) reject(c *gin.Context, log domain.Logger, policy domain.Policy, gerr *domain.GuardError, key string) {
	g.stats.recordRejection(gerr.Kind)
	g.logDecision(log, policy.Name, gerr.Kind, gerr.Scope, key, map[string]interface{}{
		"status": gerr.Status,
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	})
	WriteError(c, gerr)
}

// logDecision usa o log estruturado de decisões quando disponível
func (g *Guard) logDecision(log domain.Logger, endpoint string, kind domain.ErrorKind, scope domain.Scope, key string, fields map[string]interface{}) {
	if dl, ok := log.(decisionLogger); ok {
		dl.LogGuardDecision(endpoint, kind, scope, key, fields)
		return
	}

	merged := map[string]interface{}{"endpoint": endpoint}
	for k, v := range fields {
		merged[k] = v
	}
	if kind == "" {
		log.Debug("Request admitted by guard", merged)
		return
	}
	merged["kind"] = kind
	if scope != "" {
		merged["scope"] = scope
	}
	log.Warn("Request rejected by guard", merged)
}

// setRateLimitHeaders define headers informativos de rate limiting
func (g *Guard) setRateLimitHeaders(c *gin.Context, result domain.AdmitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	c.Header("X-RateLimit-Scope", string(result.Scope))
}

// requestID reaproveita um X-Request-ID válido ou gera um novo
func (g *Guard) requestID(c *gin.Context) string {
	if incoming := c.GetHeader(RequestIDHeader); incoming != "" {
		if parsed, err := uuid.Parse(incoming); err == nil {
			id := parsed.String()
			c.Header(RequestIDHeader, id)
			return id
		}
	}

	id := uuid.New().String()
	c.Header(RequestIDHeader, id)
	return id
}

// WriteError escreve o corpo de erro padrão e aborta a cadeia
func WriteError(c *gin.Context, gerr *domain.GuardError) {
	body := gin.H{
		"error": gerr.Message,
		"code":  gerr.Code,
	}
	if requestID := c.GetString(ContextKeyRequestID); requestID != "" {
		body["requestId"] = requestID
	}
	if gerr.Kind == domain.RateLimited {
		seconds := gerr.RetryAfterSeconds()
		if seconds < 1 {
			seconds = 1
		}
		body["retryAfter"] = seconds
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.AbortWithStatusJSON(gerr.Status, body)
}

// GuardStats conta as decisões do guard para o endpoint de métricas
type GuardStats struct {
	admitted   int64
	preflights int64

	mu       sync.RWMutex
	rejected map[domain.ErrorKind]int64
}

func newGuardStats() *GuardStats {
	return &GuardStats{rejected: make(map[domain.ErrorKind]int64)}
}

func (s *GuardStats) recordAdmission() {
	atomic.AddInt64(&s.admitted, 1)
}

func (s *GuardStats) recordPreflight() {
	atomic.AddInt64(&s.preflights, 1)
}

func (s *GuardStats) recordRejection(kind domain.ErrorKind) {
	s.mu.Lock()
	s.rejected[kind]++
	s.mu.Unlock()
}

// Snapshot retorna uma cópia dos contadores
func (s *GuardStats) Snapshot() map[string]interface{} {
	s.mu.RLock()
	rejected := make(map[string]int64, len(s.rejected))
	var total int64
	for kind, count := range s.rejected {
		rejected[string(kind)] = count
		total += count
	}
	s.mu.RUnlock()

	return map[string]interface{}{
		"admitted":       atomic.LoadInt64(&s.admitted),
		"preflights":     atomic.LoadInt64(&s.preflights),
		"rejected":       rejected,
		"rejected_total": total,
	}
}
