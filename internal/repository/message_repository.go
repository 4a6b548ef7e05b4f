package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iplance/iplance-core/internal/model"
)

// MessageRepo provides data access to the messages table.  It stores Content
// exactly as given; encryption happens before Create is called.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Create inserts a message and returns it with its id.  A zero CreatedAt is
// set to the current UTC time.
func (r *MessageRepo) Create(ctx context.Context, m model.Message) (model.Message, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var fileURL sql.NullString
	if m.FileURL != nil {
		fileURL = sql.NullString{String: *m.FileURL, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (chat_id, sender_id, content, file_url, created_at) VALUES (?,?,?,?,?)",
		m.ChatID, m.SenderID, m.Content, fileURL, m.CreatedAt)
	if err != nil {
		return model.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	m.ID = id
	return m, nil
}

// List returns messages of a chat in insertion order.
func (r *MessageRepo) List(ctx context.Context, chatID int64, skip, limit int) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, chat_id, sender_id, content, file_url, created_at FROM messages WHERE chat_id=? ORDER BY id LIMIT ? OFFSET ?",
		chatID, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			fileURL sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &fileURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		if fileURL.Valid {
			s := fileURL.String
			m.FileURL = &s
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
