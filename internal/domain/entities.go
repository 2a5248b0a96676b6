package domain

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AuthRequirement define o nível de autenticação exigido por um endpoint
type AuthRequirement string

const (
	AuthNone     AuthRequirement = "none"
	AuthOptional AuthRequirement = "optional"
	AuthRequired AuthRequirement = "required"
)

// Scope define a dimensão usada como chave do rate limit
type Scope string

const (
	UserScope Scope = "user"
	IPScope   Scope = "ip"
)

// ParseScope converte uma string em Scope
func ParseScope(raw string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(UserScope):
		return UserScope, nil
	case string(IPScope):
		return IPScope, nil
	default:
		return "", fmt.Errorf("unknown rate limit scope %q", raw)
	}
}

// DefaultBucket agrupa os contadores de limites sem preset
const DefaultBucket = "default"

// RateLimit representa o par (máximo de requisições, janela).
// Bucket separa os contadores de presets diferentes para a mesma chave.
type RateLimit struct {
	Max    int           `json:"max" yaml:"max"`
	Window time.Duration `json:"window" yaml:"window"`
	Bucket string        `json:"bucket,omitempty" yaml:"-"`
}

// NewRateLimit cria um RateLimit com janela em segundos
func NewRateLimit(max int, windowSeconds int) *RateLimit {
	return &RateLimit{Max: max, Window: time.Duration(windowSeconds) * time.Second}
}

// BucketName retorna o bucket do limite ou DefaultBucket
func (l *RateLimit) BucketName() string {
	if l == nil || strings.TrimSpace(l.Bucket) == "" {
		return DefaultBucket
	}
	return l.Bucket
}

// Validate verifica se o limite é utilizável
func (l *RateLimit) Validate() error {
	if l == nil {
		return nil
	}
	if l.Max <= 0 {
		return fmt.Errorf("rate limit max must be greater than 0")
	}
	if l.Window <= 0 {
		return fmt.Errorf("rate limit window must be greater than 0")
	}
	return nil
}

// OriginList é o conjunto imutável de origens CORS permitidas
type OriginList struct {
	wildcard bool
	origins  map[string]struct{}
}

// WildcardOrigin é o marcador que libera qualquer origem
const WildcardOrigin = "*"

// NewOriginList cria a lista a partir de origens exatas; "*" ativa o wildcard
func NewOriginList(origins ...string) OriginList {
	list := OriginList{origins: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == WildcardOrigin {
			list.wildcard = true
			continue
		}
		list.origins[origin] = struct{}{}
	}
	return list
}

// IsWildcard indica se qualquer origem é aceita
func (o OriginList) IsWildcard() bool {
	return o.wildcard
}

// Contains compara a origem de forma exata (case-sensitive)
func (o OriginList) Contains(origin string) bool {
	_, ok := o.origins[origin]
	return ok
}

// Len retorna o número de origens explícitas
func (o OriginList) Len() int {
	return len(o.origins)
}

// Policy é a configuração de segurança de um endpoint, imutável após o registro
type Policy struct {
	Name           string
	Auth           AuthRequirement
	AdminOnly      bool
	UserRateLimit  *RateLimit
	IPRateLimit    *RateLimit
	AllowedOrigins OriginList
	HTTPSOnly      bool
}

// Validate verifica as pré-condições estruturais da política
func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("policy name is required")
	}

	switch p.Auth {
	case AuthNone, AuthOptional, AuthRequired:
	default:
		return fmt.Errorf("policy %s: unknown auth requirement %q", p.Name, p.Auth)
	}

	if p.AdminOnly && p.Auth != AuthRequired {
		return fmt.Errorf("policy %s: adminOnly requires auth %q", p.Name, AuthRequired)
	}

	if err := p.UserRateLimit.Validate(); err != nil {
		return fmt.Errorf("policy %s: user %w", p.Name, err)
	}
	if err := p.IPRateLimit.Validate(); err != nil {
		return fmt.Errorf("policy %s: ip %w", p.Name, err)
	}

	return nil
}

// Clone copia a política sem compartilhar os limites
func (p Policy) Clone() Policy {
	clone := p
	if p.UserRateLimit != nil {
		limit := *p.UserRateLimit
		clone.UserRateLimit = &limit
	}
	if p.IPRateLimit != nil {
		limit := *p.IPRateLimit
		clone.IPRateLimit = &limit
	}
	return clone
}

// Named retorna uma cópia da política com outro nome de endpoint
func (p Policy) Named(name string) Policy {
	clone := p.Clone()
	clone.Name = name
	return clone
}

// WithBucket retorna uma cópia da política com os dois limites no bucket indicado
func (p Policy) WithBucket(bucket string) Policy {
	clone := p.Clone()
	if clone.UserRateLimit != nil {
		clone.UserRateLimit.Bucket = bucket
	}
	if clone.IPRateLimit != nil {
		clone.IPRateLimit.Bucket = bucket
	}
	return clone
}

// PolicySet agrupa os presets aplicados às rotas
type PolicySet struct {
	User   Policy
	Admin  Policy
	Public Policy
}

// Limits lista os limites configurados para o escopo em todos os presets
func (s PolicySet) Limits(scope Scope) []*RateLimit {
	var limits []*RateLimit
	for _, policy := range []Policy{s.User, s.Admin, s.Public} {
		limit := policy.IPRateLimit
		if scope == UserScope {
			limit = policy.UserRateLimit
		}
		if limit != nil {
			limits = append(limits, limit)
		}
	}
	return limits
}

// Identity representa o usuário autenticado da requisição
type Identity struct {
	ID        string `json:"id"`
	IsAdmin   bool   `json:"isAdmin"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// RequestContext é o contexto enriquecido entregue ao handler protegido.
// Não deve ser retido após o retorno do handler.
type RequestContext struct {
	Request    *http.Request
	User       *Identity
	ClientIP   string
	CORSOrigin string
	RequestID  string
}

// UserID retorna o id do usuário ou "anonymous"
func (rc *RequestContext) UserID() string {
	if rc == nil || rc.User == nil {
		return "anonymous"
	}
	return rc.User.ID
}

// SecurityLevel descreve se a requisição está autenticada
func (rc *RequestContext) SecurityLevel() string {
	if rc == nil || rc.User == nil {
		return "public"
	}
	return "authenticated"
}

// RateLimitStatus representa o estado de um contador de rate limit
type RateLimitStatus struct {
	Key         string        `json:"key"`
	Scope       Scope         `json:"scope"`
	Bucket      string        `json:"bucket,omitempty"`
	Count       int           `json:"count"`
	Limit       int           `json:"limit"`
	Window      time.Duration `json:"window"`
	WindowStart time.Time     `json:"windowStart"`
}

// ResetAt retorna o fim da janela corrente
func (s *RateLimitStatus) ResetAt() time.Time {
	return s.WindowStart.Add(s.Window)
}

// AdmitResult representa a decisão do rate limiter
type AdmitResult struct {
	Allowed   bool      `json:"allowed"`
	Scope     Scope     `json:"scope"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Limited   bool      `json:"limited"` // false quando nenhum limite foi configurado
}

// RetryAfter calcula quanto tempo falta para a janela reiniciar
func (r AdmitResult) RetryAfter(now time.Time) time.Duration {
	if r.ResetAt.IsZero() || !r.ResetAt.After(now) {
		return time.Second
	}
	return r.ResetAt.Sub(now)
}

// CORSDecision é o resultado da avaliação CORS
type CORSDecision struct {
	Allowed      bool
	HeaderOrigin string // vazio quando nenhum header é necessário
}
