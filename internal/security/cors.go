package security

import (
	"net/http"
	"strconv"
	"strings"

	"dashboard-api/internal/domain"
)

const (
	// DefaultPreflightMaxAge é o cache do preflight em segundos
	DefaultPreflightMaxAge = 86400

	headerOrigin        = "Origin"
	headerVary          = "Vary"
	headerAllowOrigin   = "Access-Control-Allow-Origin"
	headerAllowMethods  = "Access-Control-Allow-Methods"
	headerAllowHeaders  = "Access-Control-Allow-Headers"
	headerExposeHeaders = "Access-Control-Expose-Headers"
	headerMaxAge        = "Access-Control-Max-Age"
)

// CORSEvaluator decide se uma origem pode ler a resposta
type CORSEvaluator struct {
	allowMethods  []string
	allowHeaders  []string
	exposeHeaders []string
	maxAge        int
}

// NewCORSEvaluator cria o avaliador com os headers aceitos pela API
func NewCORSEvaluator() *CORSEvaluator {
	return &CORSEvaluator{
		allowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		allowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		exposeHeaders: []string{
			"X-Request-ID", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-RateLimit-Scope",
		},
		maxAge: DefaultPreflightMaxAge,
	}
}

// Evaluate aplica a regra: wildcard libera, origem exata libera,
// ausência de origem libera sem header, qualquer outra nega
func (e *CORSEvaluator) Evaluate(origin string, allowed domain.OriginList) domain.CORSDecision {
	if allowed.IsWildcard() {
		return domain.CORSDecision{Allowed: true, HeaderOrigin: domain.WildcardOrigin}
	}

	if origin == "" {
		return domain.CORSDecision{Allowed: true}
	}

	if allowed.Contains(origin) {
		return domain.CORSDecision{Allowed: true, HeaderOrigin: origin}
	}

	return domain.CORSDecision{Allowed: false}
}

// ApplyOrigin injeta o header de origem quando a decisão exige
func (e *CORSEvaluator) ApplyOrigin(h http.Header, decision domain.CORSDecision) {
	if !decision.Allowed || decision.HeaderOrigin == "" {
		return
	}

	h.Set(headerAllowOrigin, decision.HeaderOrigin)
	h.Set(headerExposeHeaders, strings.Join(e.exposeHeaders, ", "))
	if decision.HeaderOrigin != domain.WildcardOrigin {
		h.Add(headerVary, headerOrigin)
	}
}

// ApplyPreflight escreve os headers da resposta ao preflight
func (e *CORSEvaluator) ApplyPreflight(h http.Header, decision domain.CORSDecision) {
	e.ApplyOrigin(h, decision)
	h.Set(headerAllowMethods, strings.Join(e.allowMethods, ", "))
	h.Set(headerAllowHeaders, strings.Join(e.allowHeaders, ", "))
	h.Set(headerMaxAge, strconv.Itoa(e.maxAge))
}

// IsPreflight indica se a requisição é um preflight
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}
