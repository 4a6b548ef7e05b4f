package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/iplance/iplance-core/internal/model"
)

func TestPairKeyIsUnordered(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if pairKey(a, b) != pairKey(b, a) {
		t.Fatalf("pair key depends on order")
	}
	if pairKey(a, b) == pairKey(a, uuid.New()) {
		t.Fatalf("different pairs share a key")
	}
}

func TestChatCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewChatRepo(db)
	customer, performer := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id FROM chats WHERE pair_key=\\?").WithArgs(pairKey(customer, performer)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO chats").WithArgs(customer.String(), performer.String(), pairKey(customer, performer)).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM chats WHERE id=?")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "performer_id", "created_at"}).AddRow(7, customer.String(), performer.String(), time.Now()))

	c, err := repo.Create(context.Background(), customer, performer)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID != 7 || c.CustomerID != customer || c.PerformerID != performer {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChatCreateReversedPairConflicts(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	repo := NewChatRepo(db)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id FROM chats WHERE pair_key=\\?").WithArgs(pairKey(a, b)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	if _, err := repo.Create(context.Background(), b, a); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestChatGetByIDNotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	mock.ExpectQuery("FROM chats WHERE id=\\?").WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "performer_id", "created_at"}))

	if _, err := NewChatRepo(db).GetByID(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageCreateAndList(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	repo := NewMessageRepo(db)
	sender := uuid.New()
	url := "https://files.example/a.png"

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(5), sender.String(), "ciphertext", url, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))

	m, err := repo.Create(context.Background(), model.Message{ChatID: 5, SenderID: sender, Content: "ciphertext", FileURL: &url})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID != 11 || m.CreatedAt.IsZero() {
		t.Fatalf("unexpected message %+v", m)
	}

	mock.ExpectQuery("FROM messages WHERE chat_id=\\? ORDER BY id LIMIT \\? OFFSET \\?").WithArgs(int64(5), 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "sender_id", "content", "file_url", "created_at"}).
			AddRow(11, 5, sender.String(), "ciphertext", url, time.Now()).
			AddRow(12, 5, sender.String(), "ciphertext2", nil, time.Now()))

	msgs, err := repo.List(context.Background(), 5, 0, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 2 || msgs[0].FileURL == nil || *msgs[0].FileURL != url || msgs[1].FileURL != nil {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
