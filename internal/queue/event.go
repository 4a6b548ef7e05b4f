// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "time"

    "github.com/google/uuid"
)

// OfflineMessageEvent is published when a chat message is stored for a
// counterpart that has no live connection.  It carries enough information
// for a notifier to reach the recipient without querying the primary
// database.  Message content is deliberately absent.
type OfflineMessageEvent struct {
    ChatID         int64     `json:"chat_id"`
    MessageID      int64     `json:"message_id"`
    RecipientID    uuid.UUID `json:"recipient_id"`
    SenderID       uuid.UUID `json:"sender_id"`
    SenderUsername string    `json:"sender_username"`
    CreatedAt      time.Time `json:"created_at"`
}
