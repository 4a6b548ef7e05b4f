package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; the DSN does not enable
// multiStatements.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL,
		email         VARCHAR(255) NOT NULL,
		phone         VARCHAR(32)  NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'customer',
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		is_verified   BOOLEAN      NOT NULL DEFAULT FALSE,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_phone (phone)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS chats (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		customer_id  CHAR(36)        NOT NULL,
		performer_id CHAR(36)        NOT NULL,
		pair_key     CHAR(73)        NOT NULL,
		created_at   DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_chats_pair (pair_key),
		CONSTRAINT chk_chats_distinct CHECK (customer_id <> performer_id),
		KEY idx_chats_customer (customer_id),
		KEY idx_chats_performer (performer_id),
		CONSTRAINT fk_chats_customer FOREIGN KEY (customer_id) REFERENCES users (id),
		CONSTRAINT fk_chats_performer FOREIGN KEY (performer_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		chat_id    BIGINT UNSIGNED NOT NULL,
		sender_id  CHAR(36)        NOT NULL,
		content    TEXT            NOT NULL,
		file_url   VARCHAR(1024)   NULL,
		created_at DATETIME(6)     NOT NULL,
		KEY idx_messages_chat (chat_id, id),
		CONSTRAINT fk_messages_chat FOREIGN KEY (chat_id) REFERENCES chats (id),
		CONSTRAINT fk_messages_sender FOREIGN KEY (sender_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables this service owns when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
