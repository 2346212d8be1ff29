package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"ddpcore/internal/model"
	"ddpcore/internal/realtime"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func expectEvent(t *testing.T, ch <-chan realtime.Event, kind string) realtime.Event {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Kind != kind {
			t.Errorf("event kind = %q, want %q", ev.Kind, kind)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no %s event published", kind)
	}
	return realtime.Event{}
}

func TestUserRepository_Get(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, realtime.NewLocalBus())

	rows := sqlmock.NewRows([]string{"id", "email", "username", "birthday", "gender", "followers", "following", "created_at"}).
		AddRow("u1", "a@b.co", "alice", "2000-01-02", "f", "{u2,u3}", "{}", time.Now())
	mock.ExpectQuery(`SELECT id, email, username`).WithArgs("u1").WillReturnRows(rows)

	u, err := repo.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if u.Username != "alice" || len(u.Followers) != 2 || len(u.Following) != 0 {
		t.Errorf("got %+v", u)
	}
	if !u.HasFollower("u3") {
		t.Error("expected u3 among followers")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUserRepository_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, realtime.NewLocalBus())

	mock.ExpectQuery(`SELECT id, email, username`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "ghost")
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	bus := realtime.NewLocalBus()
	events, cancel := bus.Subscribe(realtime.UserTopic("u1"))
	defer cancel()
	repo := NewUserRepository(db, bus)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("u1", "a@b.co", "alice", "2000-01-02", "f").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &model.User{ID: "u1", Email: "a@b.co", Username: "alice", Birthday: "2000-01-02", Gender: "f"}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !u.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", u.CreatedAt, created)
	}
	if u.Followers == nil || u.Following == nil {
		t.Error("follow sets should be empty, not nil")
	}
	expectEvent(t, events, realtime.KindCreated)
}

func TestUserRepository_FollowSets(t *testing.T) {
	tests := []struct {
		name   string
		call   func(UserRepository) error
		query  string
		userID string
	}{
		{
			name:   "add following is a guarded append",
			call:   func(r UserRepository) error { return r.AddFollowing(context.Background(), "a", "b") },
			query:  `UPDATE users\s+SET following = CASE WHEN \$2 = ANY\(following\) THEN following ELSE array_append\(following, \$2\) END`,
			userID: "a",
		},
		{
			name:   "add follower is a guarded append",
			call:   func(r UserRepository) error { return r.AddFollower(context.Background(), "b", "a") },
			query:  `UPDATE users\s+SET followers = CASE WHEN \$2 = ANY\(followers\)`,
			userID: "b",
		},
		{
			name:   "remove following",
			call:   func(r UserRepository) error { return r.RemoveFollowing(context.Background(), "a", "b") },
			query:  `UPDATE users SET following = array_remove\(following, \$2\)`,
			userID: "a",
		},
		{
			name:   "remove follower",
			call:   func(r UserRepository) error { return r.RemoveFollower(context.Background(), "b", "a") },
			query:  `UPDATE users SET followers = array_remove\(followers, \$2\)`,
			userID: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			bus := realtime.NewLocalBus()
			events, cancel := bus.Subscribe(realtime.UserTopic(tt.userID))
			defer cancel()
			repo := NewUserRepository(db, bus)

			mock.ExpectExec(tt.query).WillReturnResult(sqlmock.NewResult(0, 1))

			if err := tt.call(repo); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			expectEvent(t, events, realtime.KindUpdated)
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestUserRepository_AddFollowing_MissingProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, realtime.NewLocalBus())

	mock.ExpectExec(`UPDATE users`).WithArgs("ghost", "b").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddFollowing(context.Background(), "ghost", "b")
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, realtime.NewLocalBus())

	mock.ExpectExec(`UPDATE users\s+SET username = COALESCE`).
		WithArgs("u1", "newname", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProfile(context.Background(), "u1", model.ProfileUpdate{Username: "newname"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
