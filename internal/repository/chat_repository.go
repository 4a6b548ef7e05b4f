package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iplance/iplance-core/internal/model"
)

// ChatRepo provides data access to the chats table.
type ChatRepo struct{ db *sql.DB }

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{db: db} }

// pairKey is the same for (a,b) and (b,a), so the unique index on it allows at
// most one conversation per unordered pair of users.
func pairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// Create inserts a conversation.  ErrConflict is returned when the pair
// already has one.
func (r *ChatRepo) Create(ctx context.Context, customerID, performerID uuid.UUID) (model.Conversation, error) {
	key := pairKey(customerID, performerID)
	var existing int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM chats WHERE pair_key=? LIMIT 1", key).Scan(&existing)
	if err == nil {
		return model.Conversation{}, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, err
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO chats (customer_id, performer_id, pair_key) VALUES (?,?,?)",
		customerID, performerID, key)
	if err != nil {
		if _, dup := duplicateKey(err); dup {
			return model.Conversation{}, ErrConflict
		}
		return model.Conversation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Conversation{}, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches one conversation.
func (r *ChatRepo) GetByID(ctx context.Context, id int64) (model.Conversation, error) {
	var c model.Conversation
	err := r.db.QueryRowContext(ctx,
		"SELECT id, customer_id, performer_id, created_at FROM chats WHERE id=? LIMIT 1", id).
		Scan(&c.ID, &c.CustomerID, &c.PerformerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	return c, err
}

// ListForUser returns every conversation the user participates in, newest first.
func (r *ChatRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, customer_id, performer_id, created_at FROM chats WHERE customer_id=? OR performer_id=? ORDER BY created_at DESC, id DESC",
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.PerformerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
