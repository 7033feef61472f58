package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spruceid/siwe-go"

	"github.com/p2e-inferno/teerex-sub003/internal/config"
	"github.com/p2e-inferno/teerex-sub003/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Claims struct {
	Address   string
	Organizer bool
	jwt.RegisteredClaims
}

type Service struct {
	secret    []byte
	repo      *store.Repository
	ttl       time.Duration
	nonces    *nonceStore
	domain    string
	uri       string
	statement string
	chainID   uint64
}

func NewService(cfg config.AuthConfig, repo *store.Repository) *Service {
	return &Service{
		secret:    []byte(cfg.JWTSecret),
		repo:      repo,
		ttl:       cfg.JWTTTL,
		nonces:    newNonceStore(cfg.NonceTTL),
		domain:    strings.TrimSpace(cfg.SIWEDomain),
		uri:       strings.TrimSpace(cfg.SIWEURI),
		statement: strings.TrimSpace(cfg.SIWEStatement),
		chainID:   cfg.SIWEChainID,
	}
}

func (s *Service) IssueNonce() (string, error) {
	return s.nonces.Issue()
}

// LoginWithSIWE verifies a signed SIWE message against an issued nonce
// and mints a JWT for the recovered address. The organizer flag is
// looked up at login time so organizer routes need no extra query.
func (s *Service) LoginWithSIWE(ctx context.Context, message, signature string) (string, error) {
	if strings.TrimSpace(message) == "" || strings.TrimSpace(signature) == "" {
		return "", ErrInvalidCredentials
	}

	parsed, err := siwe.ParseMessage(message)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	nonce := parsed.GetNonce()
	if !s.nonces.Has(nonce) {
		return "", ErrInvalidCredentials
	}
	var domain *string
	if s.domain != "" {
		d := s.domain
		domain = &d
	}
	if s.uri != "" {
		uri := parsed.GetURI()
		if uri.String() != s.uri {
			return "", ErrInvalidCredentials
		}
	}
	if s.statement != "" {
		if stmt := parsed.GetStatement(); stmt == nil || strings.TrimSpace(*stmt) != s.statement {
			return "", ErrInvalidCredentials
		}
	}
	if s.chainID > 0 && parsed.GetChainID() != int(s.chainID) {
		return "", ErrInvalidCredentials
	}
	if _, err := parsed.Verify(signature, domain, &nonce, nil); err != nil {
		return "", ErrInvalidCredentials
	}
	addr := store.NormalizeAddress(parsed.GetAddress().Hex())
	organizer := false
	if _, err := s.repo.GetOrganizerByAddress(ctx, addr); err == nil {
		organizer = true
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	s.nonces.Consume(nonce)
	now := time.Now()
	claims := Claims{
		Address:   addr,
		Organizer: organizer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidCredentials
}
