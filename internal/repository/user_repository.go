package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/iplance/iplance-core/internal/model"
	"github.com/iplance/iplance-core/internal/utils"
)

const userColumns = "id,username,email,phone,password_hash,role,is_active,is_verified,created_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries registration input.  Password is plain text; Create hashes it.
type NewUser struct {
	Username string
	Email    string
	Phone    string
	Password string
	Role     model.Role
}

// Create checks each unique field, hashes the password and inserts the user.
// Duplicate fields are reported as ErrUsernameExists, ErrEmailExists or
// ErrPhoneExists.  A unique-key violation that slips past the pre-checks (a
// concurrent registration) is mapped the same way.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (model.User, error) {
	u := model.User{
		ID:       uuid.New(),
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		IsActive: true,
	}
	if !u.Role.Valid() {
		u.Role = model.RoleCustomer
	}

	checks := []struct {
		query string
		arg   string
		err   error
	}{
		{"SELECT 1 FROM users WHERE LOWER(username)=LOWER(?) LIMIT 1", u.Username, ErrUsernameExists},
		{"SELECT 1 FROM users WHERE email=? LIMIT 1", u.Email, ErrEmailExists},
		{"SELECT 1 FROM users WHERE phone=? LIMIT 1", u.Phone, ErrPhoneExists},
	}
	for _, c := range checks {
		var one int
		err := r.DB.QueryRowContext(ctx, c.query, c.arg).Scan(&one)
		if err == nil {
			return model.User{}, c.err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return model.User{}, err
		}
	}

	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return model.User{}, err
	}
	u.PasswordHash = hash

	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, username, email, phone, password_hash, role, is_active, is_verified) VALUES (?,?,?,?,?,?,?,?)",
		u.ID, u.Username, u.Email, u.Phone, u.PasswordHash, string(u.Role), u.IsActive, u.IsVerified)
	if err != nil {
		if key, ok := duplicateKey(err); ok {
			switch {
			case strings.Contains(key, "email"):
				return model.User{}, ErrEmailExists
			case strings.Contains(key, "phone"):
				return model.User{}, ErrPhoneExists
			case strings.Contains(key, "username"):
				return model.User{}, ErrUsernameExists
			}
			return model.User{}, ErrConflict
		}
		return model.User{}, err
	}

	return r.GetByID(ctx, u.ID)
}

// GetByUsername fetches a user by username, ignoring case.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getOne(ctx, "LOWER(username)=LOWER(?)", strings.TrimSpace(username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByPhone fetches a user by phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getOne(ctx, "phone=?", strings.TrimSpace(phone))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// List returns one page of users ordered by creation time and the total count.
func (r *UserRepo) List(ctx context.Context, skip, limit int) ([]model.User, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, id LIMIT ? OFFSET ?", limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.PasswordHash, &role, &u.IsActive, &u.IsVerified, &u.CreatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}
