package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/google/uuid"
)

func TestHandleMessageAppendsLine(t *testing.T) {
    dir := filepath.Join(t.TempDir(), "logs")
    ev := OfflineMessageEvent{
        ChatID:         7,
        MessageID:      42,
        RecipientID:    uuid.New(),
        SenderID:       uuid.New(),
        SenderUsername: "alice",
        CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
    }
    body, _ := json.Marshal(ev)

    for i := 0; i < 2; i++ {
        if err := handleMessage(dir, body); err != nil {
            t.Fatalf("handle: %v", err)
        }
    }

    raw, err := os.ReadFile(filepath.Join(dir, OfflineLogFile))
    if err != nil {
        t.Fatalf("read log: %v", err)
    }
    lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
    if len(lines) != 2 {
        t.Fatalf("lines = %d", len(lines))
    }
    for _, want := range []string{
        "[2024-05-01T12:00:00Z]",
        "chat_id=7",
        "message_id=42",
        "recipient_id=" + ev.RecipientID.String(),
        `sender="alice"`,
    } {
        if !strings.Contains(lines[0], want) {
            t.Errorf("line %q missing %q", lines[0], want)
        }
    }
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
    dir := t.TempDir()
    if err := handleMessage(dir, []byte("{")); err == nil {
        t.Fatal("expected unmarshal error")
    }
    if err := handleMessage(dir, []byte(`{"chat_id":1}`)); err == nil {
        t.Fatal("expected error for missing message id")
    }
    if _, err := os.Stat(filepath.Join(dir, OfflineLogFile)); !os.IsNotExist(err) {
        t.Fatal("nothing should be written for rejected payloads")
    }
}
