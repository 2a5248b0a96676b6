package security

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dashboard-api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionCookie é o cookie de sessão aceito como alternativa ao header Authorization
const DefaultSessionCookie = "__session"

// JWTConfig contém a configuração de verificação dos tokens de sessão
type JWTConfig struct {
	Secret       string // HS256
	PublicKeyPEM string // RS256; tem precedência sobre Secret
	Issuer       string
	Audience     string
	Leeway       time.Duration
	CookieName   string
}

// SessionClaims são as claims esperadas no token de sessão
type SessionClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver implementa domain.IdentityResolver sobre tokens JWT
type JWTResolver struct {
	parser     *jwt.Parser
	keyFunc    jwt.Keyfunc
	cookieName string
	admins     domain.AdminDirectory
	logger     domain.Logger
}

// NewJWTResolver cria o resolver; admins pode ser nil
func NewJWTResolver(cfg JWTConfig, admins domain.AdminDirectory, logger domain.Logger) (*JWTResolver, error) {
	var (
		method string
		key    interface{}
	)

	switch {
	case strings.TrimSpace(cfg.PublicKeyPEM) != "":
		publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("invalid JWT public key: %w", err)
		}
		method = jwt.SigningMethodRS256.Alg()
		key = publicKey
	case cfg.Secret != "":
		method = jwt.SigningMethodHS256.Alg()
		key = []byte(cfg.Secret)
	default:
		return nil, fmt.Errorf("either a JWT secret or a public key must be configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}

	return &JWTResolver{
		parser: jwt.NewParser(opts...),
		keyFunc: func(token *jwt.Token) (interface{}, error) {
			return key, nil
		},
		cookieName: cookieName,
		admins:     admins,
		logger:     logger,
	}, nil
}

// Resolve retorna (nil, nil) para credenciais ausentes ou inválidas.
// Erro só ocorre quando a consulta de privilégios falha.
func (r *JWTResolver) Resolve(ctx context.Context, req *http.Request) (*domain.Identity, error) {
	raw := r.extractToken(req)
	if raw == "" {
		return nil, nil
	}

	claims := &SessionClaims{}
	token, err := r.parser.ParseWithClaims(raw, claims, r.keyFunc)
	if err != nil || !token.Valid {
		if r.logger != nil {
			r.logger.Debug("Session token rejected", map[string]interface{}{
				"reason": tokenFailureReason(err),
			})
		}
		return nil, nil
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, nil
	}

	identity := &domain.Identity{
		ID:        subject,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		IsAdmin:   claims.Admin || strings.EqualFold(claims.Role, "admin"),
	}

	if !identity.IsAdmin && r.admins != nil {
		isAdmin, err := r.admins.IsAdmin(ctx, subject)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve admin privileges: %w", err)
		}
		identity.IsAdmin = isAdmin
	}

	return identity, nil
}

// extractToken busca o token no header Authorization e depois no cookie de sessão
func (r *JWTResolver) extractToken(req *http.Request) string {
	if auth := strings.TrimSpace(req.Header.Get("Authorization")); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if cookie, err := req.Cookie(r.cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

// tokenFailureReason classifica a falha sem expor o token
func tokenFailureReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "claims"
	default:
		return "invalid"
	}
}

// StaticAdminDirectory resolve administradores a partir de uma lista fixa de ids
type StaticAdminDirectory struct {
	ids map[string]struct{}
}

// NewStaticAdminDirectory cria o diretório a partir de ADMIN_USER_IDS
func NewStaticAdminDirectory(ids []string) *StaticAdminDirectory {
	dir := &StaticAdminDirectory{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			dir.ids[id] = struct{}{}
		}
	}
	return dir
}

// IsAdmin implementa domain.AdminDirectory
func (d *StaticAdminDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	_, ok := d.ids[userID]
	return ok, nil
}
