package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	// AllowAnonymousReads lets GET requests through without a token.
	AllowAnonymousReads bool
	ClockSkew           time.Duration
}

type contextKey string

const (
	ContextKeyCaller    contextKey = "vaultd.caller"
	ContextKeyRequestID contextKey = "vaultd.request_id"
)

// Caller returns the authenticated account bound to ctx, if any.
func Caller(ctx context.Context) string {
	caller, _ := ctx.Value(ContextKeyCaller).(string)
	return caller
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Middleware verifies the bearer token and binds its subject as the caller.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			if r.Method == http.MethodGet && a.cfg.AllowAnonymousReads {
				next.ServeHTTP(w, r)
				return
			}
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Warn("auth: token validation failed", slog.Any("error", err))
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
			a.logger.Warn("auth: claim validation failed", slog.Any("error", err))
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		subject, err := claims.GetSubject()
		if err != nil || strings.TrimSpace(subject) == "" {
			writeAuthError(w, http.StatusUnauthorized, "token subject required")
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyCaller, strings.TrimSpace(subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, err := claims.GetIssuer(); err != nil || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		values, err := claims.GetAudience()
		if err != nil {
			return errors.New("audience mismatch")
		}
		for _, entry := range values {
			if entry == audience {
				return nil
			}
		}
		return errors.New("audience mismatch")
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
