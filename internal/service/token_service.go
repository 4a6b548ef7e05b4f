package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iplance/iplance-core/internal/utils"
)

// RevocationStore is the denylist the token service writes and consults.
type RevocationStore interface {
	Revoke(ctx context.Context, raw string, ttl time.Duration) error
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

// Session is the token bundle handed out at login.
type Session struct {
	Access  utils.IssuedToken
	Refresh utils.IssuedToken
	CSRF    utils.IssuedToken
}

// TokenService issues and validates session tokens.  A token is valid until
// it expires or is revoked; both states are terminal.
type TokenService struct {
	secret      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	csrfTTL     time.Duration
	revocations RevocationStore
	now         func() time.Time
}

// TokenConfig groups the lifetimes of the three session tokens.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CSRFTTL    time.Duration
}

func NewTokenService(cfg TokenConfig, revocations RevocationStore) *TokenService {
	return &TokenService{
		secret:      cfg.Secret,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		csrfTTL:     cfg.CSRFTTL,
		revocations: revocations,
		now:         time.Now,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }
func (s *TokenService) CSRFTTL() time.Duration    { return s.csrfTTL }

func (s *TokenService) IssueAccess(subject string) (utils.IssuedToken, error) {
	return utils.NewToken(s.secret, subject, utils.KindAccess, s.accessTTL)
}

func (s *TokenService) IssueRefresh(subject string) (utils.IssuedToken, error) {
	return utils.NewToken(s.secret, subject, utils.KindRefresh, s.refreshTTL)
}

func (s *TokenService) IssueCSRF() (utils.IssuedToken, error) {
	return utils.NewCSRFToken(s.csrfTTL)
}

// IssueSession produces access, refresh and csrf tokens together.  Nothing
// is persisted, so a failure leaves no partial state behind.
func (s *TokenService) IssueSession(subject string) (Session, error) {
	var (
		out Session
		err error
	)
	if out.Access, err = s.IssueAccess(subject); err != nil {
		return Session{}, fmt.Errorf("issue access: %w", err)
	}
	if out.Refresh, err = s.IssueRefresh(subject); err != nil {
		return Session{}, fmt.Errorf("issue refresh: %w", err)
	}
	if out.CSRF, err = s.IssueCSRF(); err != nil {
		return Session{}, fmt.Errorf("issue csrf: %w", err)
	}
	return out, nil
}

// IsRevoked reports whether raw is on the denylist.
func (s *TokenService) IsRevoked(ctx context.Context, raw string) (bool, error) {
	revoked, err := s.revocations.IsRevoked(ctx, raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return revoked, nil
}

// Validate checks raw against the denylist, then its signature, expiry,
// kind and subject.  A revoked token is rejected even when it is otherwise
// valid.
func (s *TokenService) Validate(ctx context.Context, raw string, kind utils.TokenKind) (*utils.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMissing
	}
	revoked, err := s.IsRevoked(ctx, raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	claims, err := utils.ParseToken(s.secret, raw, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if claims.Kind != kind {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// Revoke denylists raw for the rest of its lifetime.  Tokens that already
// expired are left alone, and revoking twice is harmless.  Only tokens
// signed by this service can be revoked.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrTokenMissing
	}
	claims, err := utils.ParseToken(s.secret, raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return ErrTokenMalformed
	}
	if claims.ExpiresAt == nil {
		return ErrTokenMalformed
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, raw, remaining); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RefreshAccess mints a new access token for the subject of a valid refresh
// token and returns it with the refresh token's claims.  The refresh token
// itself is not rotated.
func (s *TokenService) RefreshAccess(ctx context.Context, refreshRaw string) (utils.IssuedToken, *utils.Claims, error) {
	claims, err := s.Validate(ctx, refreshRaw, utils.KindRefresh)
	if err != nil {
		return utils.IssuedToken{}, nil, err
	}
	access, err := s.IssueAccess(claims.Subject)
	if err != nil {
		return utils.IssuedToken{}, nil, fmt.Errorf("issue access: %w", err)
	}
	return access, claims, nil
}
