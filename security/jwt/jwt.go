// Package jwt issues and verifies HS256 bearer tokens for API clients.
package jwt

import (
	"errors"
	"time"

	jwtstd "github.com/golang-jwt/jwt/v5"
)

// TokenError represents JWT token related errors
type TokenError string

func (e TokenError) Error() string {
	return string(e)
}

const (
	DefaultAccessTokenExpire = time.Hour * 24

	ErrNeedTokenProvider = TokenError("cannot sign token without token provider")
	ErrInvalidToken      = TokenError("invalid token")
	ErrTokenParsing      = TokenError("token parsing error")
	ErrTokenExpired      = TokenError("token expired")
)

// TokenPayload represents the payload carried in access tokens
type TokenPayload struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

func (p TokenPayload) toMap() map[string]any {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"user_id": p.UserID,
		"email":   p.Email,
		"roles":   roles,
	}
}

// TokenManager handles JWT token operations
type TokenManager struct {
	key    string
	issuer string
}

// NewTokenManager creates a new TokenManager instance
func NewTokenManager(key string, issuer ...string) *TokenManager {
	tm := &TokenManager{key: key}
	if len(issuer) > 0 {
		tm.issuer = issuer[0]
	}
	return tm
}

// validateKey validates the token key
func (jtm *TokenManager) validateKey() error {
	if jtm.key == "" {
		return ErrNeedTokenProvider
	}
	return nil
}

// GenerateAccessToken signs an access token for payload. A zero expiry uses
// DefaultAccessTokenExpire.
func (jtm *TokenManager) GenerateAccessToken(jti string, payload TokenPayload, expiry time.Duration) (string, error) {
	if err := jtm.validateKey(); err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = DefaultAccessTokenExpire
	}

	now := time.Now()
	claims := jwtstd.MapClaims{
		"jti":     jti,
		"sub":     payload.UserID,
		"payload": payload.toMap(),
		"iat":     now.Unix(),
		"exp":     now.Add(expiry).Unix(),
	}
	if jtm.issuer != "" {
		claims["iss"] = jtm.issuer
	}

	t := jwtstd.NewWithClaims(jwtstd.SigningMethodHS256, claims)
	return t.SignedString([]byte(jtm.key))
}

// ValidateToken parses and verifies a token. Only HS256 is accepted.
func (jtm *TokenManager) ValidateToken(tokenString string) (*jwtstd.Token, error) {
	if err := jtm.validateKey(); err != nil {
		return nil, err
	}

	opts := []jwtstd.ParserOption{jwtstd.WithValidMethods([]string{jwtstd.SigningMethodHS256.Alg()})}
	if jtm.issuer != "" {
		opts = append(opts, jwtstd.WithIssuer(jtm.issuer))
	}

	token, err := jwtstd.Parse(tokenString, func(token *jwtstd.Token) (any, error) {
		return []byte(jtm.key), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwtstd.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return token, nil
}

// DecodeToken decodes a JWT token into its claims
func (jtm *TokenManager) DecodeToken(tokenString string) (map[string]any, error) {
	token, err := jtm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwtstd.MapClaims)
	if !ok {
		return nil, ErrTokenParsing
	}
	return claims, nil
}

// getPayloadFromClaims extracts the payload from token claims
func getPayloadFromClaims(claims map[string]any) (map[string]any, bool) {
	payloadAny, ok := claims["payload"]
	if !ok {
		return nil, false
	}
	payload, ok := payloadAny.(map[string]any)
	return payload, ok
}

func getString(claims map[string]any, key string) string {
	if payload, ok := getPayloadFromClaims(claims); ok {
		if s, ok := payload[key].(string); ok {
			return s
		}
	}
	return ""
}

// GetUserIDFromToken gets the user ID from the token
func GetUserIDFromToken(claims map[string]any) string {
	if id := getString(claims, "user_id"); id != "" {
		return id
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// GetEmailFromToken gets the e-mail from the token
func GetEmailFromToken(claims map[string]any) string {
	return getString(claims, "email")
}

// GetRolesFromToken extracts roles from token claims
func GetRolesFromToken(claims map[string]any) []string {
	payload, ok := getPayloadFromClaims(claims)
	if !ok {
		return []string{}
	}
	slice, ok := payload["roles"].([]any)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if str, ok := item.(string); ok {
			result = append(result, str)
		}
	}
	return result
}
