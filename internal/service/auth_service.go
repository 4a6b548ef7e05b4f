package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iplance/iplance-core/internal/model"
	"github.com/iplance/iplance-core/internal/repository"
	"github.com/iplance/iplance-core/internal/utils"
)

// Credentials is login input: exactly one identifier plus the password.
type Credentials struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Identifier returns the kind and value of the single identifier supplied.
// ok is false when none or more than one is present.
func (c Credentials) Identifier() (kind, value string, ok bool) {
	n := 0
	for _, f := range []struct{ k, v string }{
		{"username", c.Username}, {"email", c.Email}, {"phone", c.Phone},
	} {
		if v := strings.TrimSpace(f.v); v != "" {
			kind, value = f.k, v
			n++
		}
	}
	return kind, value, n == 1
}

// AuthService checks credentials and issues sessions.
type AuthService struct {
	Users  UserLookup
	Tokens *TokenService
}

func NewAuthService(users UserLookup, tokens *TokenService) *AuthService {
	return &AuthService{Users: users, Tokens: tokens}
}

// Login verifies credentials and returns the user with a fresh session.
// Unknown identifiers, wrong passwords and inactive accounts all yield
// ErrInvalidCredentials; an unknown identifier still pays for one bcrypt
// comparison.  Store failures are returned as-is.
func (a *AuthService) Login(ctx context.Context, c Credentials) (model.User, Session, error) {
	kind, value, ok := c.Identifier()
	if !ok || c.Password == "" {
		return model.User{}, Session{}, ErrInvalidCredentials
	}

	var (
		u   model.User
		err error
	)
	switch kind {
	case "email":
		u, err = a.Users.GetByEmail(ctx, value)
	case "phone":
		u, err = a.Users.GetByPhone(ctx, value)
	default:
		u, err = a.Users.GetByUsername(ctx, value)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.BurnPasswordCheck(c.Password)
			return model.User{}, Session{}, fmt.Errorf("%w: %s %q not found", ErrInvalidCredentials, kind, value)
		}
		return model.User{}, Session{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, c.Password) {
		return model.User{}, Session{}, fmt.Errorf("%w: wrong password for %q", ErrInvalidCredentials, u.Username)
	}
	if !u.IsActive {
		return model.User{}, Session{}, fmt.Errorf("%w: %q is inactive", ErrInvalidCredentials, u.Username)
	}

	sess, err := a.Tokens.IssueSession(u.Username)
	if err != nil {
		return model.User{}, Session{}, err
	}
	return u, sess, nil
}
