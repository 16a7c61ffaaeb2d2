package auth

import (
	"encoding/json/v2"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/id"
)

const (
	tokenIssuer   = "storyline-daemon"
	tokenAudience = "storyline-remote"

	// DefaultTokenDuration keeps a paired remote valid for half a
	// year. Pairings can be revoked server-side at any time.
	DefaultTokenDuration = 180 * 24 * time.Hour
)

// TokenService mints and verifies PASETO v4.local device tokens for
// paired remote-control clients.
type TokenService struct {
	symmetricKey  paseto.V4SymmetricKey
	tokenDuration time.Duration
}

// NewTokenService creates a token service around a 32-byte symmetric
// key, typically from LoadOrGenerateKey. A zero duration picks
// DefaultTokenDuration.
func NewTokenService(key []byte, tokenDuration time.Duration) (*TokenService, error) {
	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("invalid PASETO symmetric key: %w", err)
	}
	if tokenDuration <= 0 {
		tokenDuration = DefaultTokenDuration
	}

	return &TokenService{
		symmetricKey:  symmetricKey,
		tokenDuration: tokenDuration,
	}, nil
}

// GenerateDeviceToken creates an encrypted device token for a
// completed pairing.
func (s *TokenService) GenerateDeviceToken(pairing *domain.Pairing) (string, error) {
	now := time.Now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(pairing.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.tokenDuration))

	tokenID, err := id.Generate("token")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on invalid types, which we control.
	_ = token.Set("device_id", pairing.ID)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control.
	_ = token.Set("device_name", pairing.DeviceName)

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyToken decrypts and validates a device token, returning its
// claims.
func (s *TokenService) VerifyToken(tokenString string) (*DeviceClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(time.Now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims DeviceClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}

// TokenDuration returns the configured device token lifetime.
func (s *TokenService) TokenDuration() time.Duration {
	return s.tokenDuration
}
