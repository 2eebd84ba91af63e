package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voicebatch-platform/internal/config"
)

var (
	ErrTokenType    = errors.New("auth: token_type mismatch")
	ErrClaimMissing = errors.New("auth: required claim missing")
)

// Leeway tolerates clock skew between the identity provider and this service.
const Leeway = 30 * time.Second

// Manager issues and verifies HS256 tokens. Sessions live with the identity
// provider; issuance here serves tooling and tests.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (m *Manager) IssuePair(now time.Time, userID, tenantID, role string) (TokenPair, error) {
	access, err := m.issue(now, TokenTypeAccess, userID, tenantID, role, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	// Refresh tokens do not carry a role.
	refresh, err := m.issue(now, TokenTypeRefresh, userID, tenantID, "", m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess returns a single access token.
func (m *Manager) IssueAccess(now time.Time, userID, tenantID, role string) (string, error) {
	return m.issue(now, TokenTypeAccess, userID, tenantID, role, m.accessTTL)
}

func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}

	if claims.TokenType != expected {
		return Claims{}, ErrTokenType
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: user_id", ErrClaimMissing)
	}
	if claims.TenantID == "" {
		return Claims{}, fmt.Errorf("%w: tenant_id", ErrClaimMissing)
	}
	if expected == TokenTypeAccess && claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: role", ErrClaimMissing)
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, tokenType TokenType, userID, tenantID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		TokenType: tokenType,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
