// Package service contains application services: wallet authentication, player game
// operations and administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/avamon/internal/crypto"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/limiter"
	"github.com/and161185/avamon/internal/model"
)

// Token audiences keep login challenges and access tokens apart.
const (
	challengeAudience = "avamon-login"
	accessAudience    = "avamon-api"
)

// AuthService defines wallet login and token verification.
type AuthService interface {
	// Challenge returns a short-lived message the wallet must sign.
	Challenge(ctx context.Context, address string) (model.Challenge, error)
	// Login verifies the signed challenge with rate limiting by (address, ip) and issues an access token.
	Login(ctx context.Context, address, challengeToken string, signature []byte, ip string) (model.Tokens, model.Principal, error)
	// ParseAccessToken validates an access token and returns its principal.
	ParseAccessToken(token string) (model.Principal, error)
}

type challengeClaims struct {
	Message string `json:"msg"`
	jwt.RegisteredClaims
}

type accessClaims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

type AuthServiceImpl struct {
	signKey      []byte
	accessTTL    time.Duration
	challengeTTL time.Duration
	lim          limiter.Limiter
	admins       map[common.Address]bool
	now          func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(signKey []byte, accessTTL, challengeTTL time.Duration, lim limiter.Limiter, admins []common.Address) *AuthServiceImpl {
	set := make(map[common.Address]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &AuthServiceImpl{
		signKey:      signKey,
		accessTTL:    accessTTL,
		challengeTTL: challengeTTL,
		lim:          lim,
		admins:       set,
		now:          time.Now,
	}
}

// ParseAddress validates a 0x-prefixed hex wallet address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: validation: bad address %q", errs.ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

// Challenge issues a signed, stateless login challenge for address.
func (s *AuthServiceImpl) Challenge(_ context.Context, address string) (model.Challenge, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return model.Challenge{}, err
	}
	nonce, err := pkgcrypto.Nonce()
	if err != nil {
		return model.Challenge{}, err
	}
	now := s.now()
	exp := now.Add(s.challengeTTL)
	msg := fmt.Sprintf("Sign in to Avamon\n\nAddress: %s\nNonce: %s\nExpires: %s",
		addr.Hex(), nonce, exp.UTC().Format(time.RFC3339))

	claims := challengeClaims{
		Message: msg,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			Audience:  jwt.ClaimStrings{challengeAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Challenge{}, err
	}
	return model.Challenge{Message: msg, Token: tok, ExpiresAt: exp}, nil
}

// Login authenticates with rate limiting by (address, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, address, challengeToken string, signature []byte, ip string) (model.Tokens, model.Principal, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return model.Tokens{}, model.Principal{}, err
	}
	key := addr.Hex()
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, key, ipHash)
	if err != nil {
		return model.Tokens{}, model.Principal{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Principal{}, errs.ErrRateLimited
	}

	if err := s.verifyChallenge(addr, challengeToken, signature); err != nil {
		if blocked, _, ferr := s.lim.Failure(ctx, key, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Principal{}, errs.ErrRateLimited
		}
		return model.Tokens{}, model.Principal{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, key, ipHash)

	p := model.Principal{Address: addr, Admin: s.admins[addr]}
	access, exp, err := s.issueAccessToken(p)
	if err != nil {
		return model.Tokens{}, model.Principal{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, p, nil
}

func (s *AuthServiceImpl) keyFunc(*jwt.Token) (any, error) { return s.signKey, nil }

func (s *AuthServiceImpl) parserOpts(aud string) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(aud),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithTimeFunc(s.now),
	}
}

func (s *AuthServiceImpl) verifyChallenge(addr common.Address, token string, sig []byte) error {
	var claims challengeClaims
	if _, err := jwt.ParseWithClaims(token, &claims, s.keyFunc, s.parserOpts(challengeAudience)...); err != nil {
		return fmt.Errorf("challenge: %w", err)
	}
	if claims.Subject != addr.Hex() {
		return errors.New("challenge issued for another address")
	}
	return pkgcrypto.VerifySignature(addr, []byte(claims.Message), sig)
}

// issueAccessToken creates a signed HS256 JWT for the given principal.
func (s *AuthServiceImpl) issueAccessToken(p model.Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		Admin: p.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Address.Hex(),
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	return signed, exp, err
}

// ParseAccessToken verifies an access token. The admin flag also requires the
// address to still be in the configured admin set.
func (s *AuthServiceImpl) ParseAccessToken(token string) (model.Principal, error) {
	var claims accessClaims
	if _, err := jwt.ParseWithClaims(token, &claims, s.keyFunc, s.parserOpts(accessAudience)...); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if !common.IsHexAddress(claims.Subject) {
		return model.Principal{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	addr := common.HexToAddress(claims.Subject)
	return model.Principal{Address: addr, Admin: claims.Admin && s.admins[addr]}, nil
}
