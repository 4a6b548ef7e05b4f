package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"  // secure random number generation
    "encoding/hex" // hex encoding of csrf tokens
    "errors"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/oklog/ulid/v2"     // unique token ids
)

// TokenKind distinguishes access tokens from refresh tokens.  It travels in
// the "typ" claim so one kind can never be replayed as the other.
type TokenKind string

const (
    KindAccess  TokenKind = "access"
    KindRefresh TokenKind = "refresh"
)

// Claims is the claim set carried by every session JWT.  Subject holds the
// principal's username.  ID (jti) is a ULID so that two tokens minted for
// the same subject within one second still differ and can be revoked
// independently.
type Claims struct {
    Kind TokenKind `json:"typ"`
    jwt.RegisteredClaims
}

// IssuedToken is a token string along with its expiry.  It is used for the
// signed access/refresh tokens and for the opaque csrf token.
type IssuedToken struct {
    Token string    // the serialized token
    Exp   time.Time // the UTC expiration time
}

// NewToken builds and signs an HS256 JWT of the given kind for subject.
func NewToken(secret, subject string, kind TokenKind, ttl time.Duration) (IssuedToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := Claims{
        Kind: kind,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   subject,
            ID:        ulid.Make().String(),
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return IssuedToken{}, err
    }
    // exp is truncated to whole seconds inside the JWT; report the same value.
    return IssuedToken{Token: signed, Exp: claims.ExpiresAt.Time}, nil
}

// ParseToken verifies the HS256 signature of raw and decodes its claims.
// By default expiry is enforced and required; extra parser options are
// appended, so jwt.WithoutClaimsValidation() can be used to read the claims
// of an already expired token.
func ParseToken(secret, raw string, opts ...jwt.ParserOption) (*Claims, error) {
    base := []jwt.ParserOption{
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithIssuedAt(),
    }
    var claims Claims
    tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, errors.New("unexpected signing method")
        }
        return []byte(secret), nil
    }, append(base, opts...)...)
    if err != nil {
        return nil, err
    }
    if !tok.Valid {
        return nil, jwt.ErrTokenUnverifiable
    }
    return &claims, nil
}

// NewCSRFToken returns an opaque random token.  It is not signed: its only
// job is to be echoed back in a header and compared against the cookie.
func NewCSRFToken(ttl time.Duration) (IssuedToken, error) {
    raw, err := randomHex(32)
    if err != nil {
        return IssuedToken{}, err
    }
    return IssuedToken{Token: raw, Exp: time.Now().UTC().Add(ttl)}, nil
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
