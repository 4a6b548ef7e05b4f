package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Frame types written to chat sockets.
const (
	FrameJoin    = "join"
	FrameLeave   = "leave"
	FrameMessage = "message"
	FrameError   = "error"
	FrameNotice  = "notice"
)

// PresenceFrame announces that a participant joined or left a chat.
type PresenceFrame struct {
	Type     string    `json:"type"`
	ChatID   int64     `json:"chat_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// MessageFrame carries one stored chat message in plaintext.
type MessageFrame struct {
	Type           string    `json:"type"`
	ChatID         int64     `json:"chat_id"`
	MessageID      int64     `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Text           string    `json:"text"`
	FileURL        *string   `json:"file_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// TextFrame is an error or server notice.
type TextFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// inbound is what a client may send: raw text, or a JSON object with text
// and an optional attachment reference.
type inbound struct {
	Text    string  `json:"text"`
	FileURL *string `json:"file_url"`
}

func parseInbound(data []byte) inbound {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, "{") {
		var in inbound
		if err := json.Unmarshal([]byte(raw), &in); err == nil {
			in.Text = strings.TrimSpace(in.Text)
			if in.FileURL != nil {
				if u := strings.TrimSpace(*in.FileURL); u != "" {
					in.FileURL = &u
				} else {
					in.FileURL = nil
				}
			}
			return in
		}
	}
	return inbound{Text: raw}
}

func mustFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Frames are plain structs; marshal cannot fail.
		panic(err)
	}
	return b
}

// NoticeFrame builds a server notice, e.g. for shutdown.
func NoticeFrame(text string) []byte {
	return mustFrame(TextFrame{Type: FrameNotice, Text: text})
}

func errorFrame(text string) []byte {
	return mustFrame(TextFrame{Type: FrameError, Text: text})
}
