package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iplance/iplance-core/internal/model"
	"github.com/iplance/iplance-core/internal/repository"
	"github.com/iplance/iplance-core/internal/utils"
)

// UserLookup is the subset of the user repository needed to turn a token
// subject or a login identifier into a principal.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
}

// PrincipalResolver turns an access token into the user it names.  The HTTP
// session middleware and the chat websocket share it so both apply the same
// rules.
type PrincipalResolver struct {
	Tokens *TokenService
	Users  UserLookup
}

func NewPrincipalResolver(tokens *TokenService, users UserLookup) *PrincipalResolver {
	return &PrincipalResolver{Tokens: tokens, Users: users}
}

// Resolve validates raw as an access token and loads its subject.  Unknown
// or deactivated accounts yield ErrUnknownPrincipal.
func (p *PrincipalResolver) Resolve(ctx context.Context, raw string) (model.User, *utils.Claims, error) {
	claims, err := p.Tokens.Validate(ctx, raw, utils.KindAccess)
	if err != nil {
		return model.User{}, nil, err
	}
	u, err := p.Users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, nil, ErrUnknownPrincipal
		}
		return model.User{}, nil, fmt.Errorf("load principal: %w", err)
	}
	if !u.IsActive {
		return model.User{}, nil, ErrUnknownPrincipal
	}
	return u, claims, nil
}
