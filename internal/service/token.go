package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/domain/user"
	"github.com/Strob0t/StockForge/internal/secrets"
)

// TokenService signs and verifies the HS256 access tokens that carry the
// caller's identity triple. Tokens are minted by the platform's identity
// provider; Sign exists for the admin CLI and tests.
type TokenService struct {
	keys   *secrets.Keyring
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService signing with the configured secret.
func NewTokenService(cfg config.Auth) *TokenService {
	return NewTokenServiceWithKeys(cfg, secrets.Static(cfg.JWTSecret))
}

// NewTokenServiceWithKeys creates a TokenService backed by a reloadable keyring.
// Tokens signed with the keyring's previous key still verify after a rotation.
func NewTokenServiceWithKeys(cfg config.Auth, keys *secrets.Keyring) *TokenService {
	return &TokenService{
		keys:   keys,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// jwtHeader is the fixed base64url-encoded header for HS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Sign issues a token for id valid for ttl.
func (s *TokenService) Sign(id user.Identity, ttl time.Duration) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	now := s.now()
	claims := user.TokenClaims{
		UserID:   id.UserID,
		TenantID: id.TenantID,
		Roles:    id.Roles,
		Issuer:   s.issuer,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	return signingInput + "." + sign(s.keys.Current(), signingInput), nil
}

// Verify checks the signature, issuer and expiry of tokenStr and returns its claims.
func (s *TokenService) Verify(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	if !s.signedByAccepted(signingInput, parts[2]) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if s.now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	if claims.Issuer != s.issuer {
		return nil, errors.New("invalid token issuer")
	}

	return &claims, nil
}

func (s *TokenService) signedByAccepted(input, signature string) bool {
	for _, key := range s.keys.Accepted() {
		if hmac.Equal([]byte(signature), []byte(sign(key, input))) {
			return true
		}
	}
	return false
}

func sign(key []byte, input string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(input))
	return base64URLEncode(mac.Sum(nil))
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
