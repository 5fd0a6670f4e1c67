// Пакет auth проверяет JWT-токены внешнего провайдера идентификации.
// Подписи валидируются по JWKS (RS256), ключи обновляются в фоне.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier проверяет Bearer-токены входящих запросов
type Verifier struct {
	jwks     keyfunc.Keyfunc
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier создает верификатор с JWKS по указанному URL.
// Ключи обновляются в фоне с интервалом из конфигурации.
func NewVerifier(cfg *Config) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Printf("[AUTH] JWKS refresh failed for %s: %v", cfg.JWKSURL, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create keyfunc: %w", err)
	}

	return &Verifier{
		jwks:     k,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
	}, nil
}

// NewVerifierWithKeyfunc создает верификатор с готовой keyfunc.
// Используется в тестах вместо сетевого JWKS.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer, audience string, leeway time.Duration) *Verifier {
	return &Verifier{
		jwks:     kf,
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
	}
}

// VerifyRequest извлекает Bearer-токен из запроса и возвращает sub.
// Любая ошибка означает, что запрос не аутентифицирован.
func (v *Verifier) VerifyRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	tokenString := parts[1]
	if tokenString == "" {
		return "", fmt.Errorf("empty bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(r.Context()), opts...)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}

// SubjectOptional возвращает sub, если запрос содержит валидный токен,
// и пустую строку в остальных случаях. Для публичных endpoint'ов.
func (v *Verifier) SubjectOptional(r *http.Request) string {
	if r.Header.Get("Authorization") == "" {
		return ""
	}
	subject, err := v.VerifyRequest(r)
	if err != nil {
		return ""
	}
	return subject
}
