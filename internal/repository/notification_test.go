package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"ddpcore/internal/model"
	"ddpcore/internal/realtime"
)

func TestNotificationRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	bus := realtime.NewLocalBus()
	inbox, cancel := bus.Subscribe(realtime.NotificationsTopic("b"))
	defer cancel()
	repo := NewNotificationRepository(db, bus)

	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), "b", "a", "alice", model.FollowMessage, model.NotificationTypeFollow, nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	n := &model.Notification{
		RecipientID: "b",
		SenderID:    "a",
		SenderName:  "alice",
		Message:     model.FollowMessage,
		Type:        model.NotificationTypeFollow,
	}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", n)
	}
	expectEvent(t, inbox, realtime.KindCreated)
}

func TestNotificationRepository_Create_RejectsUnknownType(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db, realtime.NewLocalBus())

	err := repo.Create(context.Background(), &model.Notification{
		RecipientID: "b",
		SenderID:    "a",
		Type:        "poke",
	})

	if !errors.Is(err, model.ErrInvalidNotificationType) {
		t.Errorf("expected ErrInvalidNotificationType, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNotificationRepository_SetRead(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantErr error
	}{
		{
			name: "existing notification",
			rows: sqlmock.NewRows([]string{"recipient_id"}).AddRow("b"),
		},
		{
			name:    "missing notification",
			rows:    sqlmock.NewRows([]string{"recipient_id"}),
			wantErr: model.ErrNotificationNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewNotificationRepository(db, realtime.NewLocalBus())

			mock.ExpectQuery(`UPDATE notifications SET read = \$2 WHERE id = \$1`).
				WithArgs("n1", true).
				WillReturnRows(tt.rows)

			err := repo.SetRead(context.Background(), "n1", true)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNotificationRepository_Delete_MissingIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db, realtime.NewLocalBus())

	mock.ExpectQuery(`DELETE FROM notifications`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}))

	if err := repo.Delete(context.Background(), "gone"); err != nil {
		t.Errorf("expected no error deleting a missing notification, got: %v", err)
	}
}

func TestAccountRepository_Create_DuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs(sqlmock.AnyArg(), "a@b.co", "hash", "alice").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &model.Account{Email: "a@b.co", PasswordHash: "hash", DisplayName: "alice"})
	if !errors.Is(err, model.ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got: %v", err)
	}
}

func TestAccountRepository_GetByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery(`SELECT id, email, password_hash`).WithArgs("x@y.z").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByEmail(context.Background(), "x@y.z")
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got: %v", err)
	}
}
