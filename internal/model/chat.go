package model

import (
    "time"

    "github.com/google/uuid"
)

// Conversation is a two-party chat between a customer and a performer
// (`chats` table).  Only the two participants may read or post.
type Conversation struct {
    ID          int64     `json:"id"`
    CustomerID  uuid.UUID `json:"customer_id"`
    PerformerID uuid.UUID `json:"performer_id"`
    CreatedAt   time.Time `json:"created_at"`
}

// HasParticipant reports whether id is the customer or the performer.
func (c Conversation) HasParticipant(id uuid.UUID) bool {
    return id == c.CustomerID || id == c.PerformerID
}

// Counterpart returns the other participant.  The second result is false
// when id does not belong to the conversation.
func (c Conversation) Counterpart(id uuid.UUID) (uuid.UUID, bool) {
    switch id {
    case c.CustomerID:
        return c.PerformerID, true
    case c.PerformerID:
        return c.CustomerID, true
    }
    return uuid.Nil, false
}

// Message is one entry of a conversation (`messages` table).  Content holds
// ciphertext while at rest; handlers replace it with plaintext when reading.
// Messages are never updated after insert.
type Message struct {
    ID        int64     `json:"id"`
    ChatID    int64     `json:"chat_id"`
    SenderID  uuid.UUID `json:"sender_id"`
    Content   string    `json:"content"`
    FileURL   *string   `json:"file_url,omitempty"`
    CreatedAt time.Time `json:"created_at"`
}
