package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ddpcore/internal/model"
	"ddpcore/internal/realtime"
)

// userRepository implements UserRepository using sqlx
type userRepository struct {
	db  *sqlx.DB
	bus realtime.Bus
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB, bus realtime.Bus) UserRepository {
	return &userRepository{db: db, bus: bus}
}

type userRow struct {
	ID        string         `db:"id"`
	Email     string         `db:"email"`
	Username  string         `db:"username"`
	Birthday  string         `db:"birthday"`
	Gender    string         `db:"gender"`
	Followers pq.StringArray `db:"followers"`
	Following pq.StringArray `db:"following"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:        r.ID,
		Email:     r.Email,
		Username:  r.Username,
		Birthday:  r.Birthday,
		Gender:    r.Gender,
		Followers: []string(r.Followers),
		Following: []string(r.Following),
		CreatedAt: r.CreatedAt,
	}
}

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	query := `
		SELECT id, email, username, birthday, gender, followers, following, created_at
		FROM users
		WHERE id = $1
	`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toModel(), nil
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, username, birthday, gender, followers, following)
		VALUES ($1, $2, $3, $4, $5, '{}', '{}')
		RETURNING created_at
	`
	if err := r.db.QueryRowxContext(ctx, query, u.ID, u.Email, u.Username, u.Birthday, u.Gender).Scan(&u.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.Followers = []string{}
	u.Following = []string{}

	publish(ctx, r.bus, realtime.UserTopic(u.ID), realtime.KindCreated, u.ID)
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error {
	query := `
		UPDATE users
		SET username = COALESCE(NULLIF($2, ''), username),
		    birthday = COALESCE(NULLIF($3, ''), birthday),
		    gender   = COALESCE(NULLIF($4, ''), gender)
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, update.Username, update.Birthday, update.Gender)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if err := expectRow(res, model.ErrUserNotFound); err != nil {
		return err
	}

	publish(ctx, r.bus, realtime.UserTopic(id), realtime.KindUpdated, id)
	return nil
}

// Column names are fixed identifiers, never user input.
const (
	columnFollowers = "followers"
	columnFollowing = "following"
)

func (r *userRepository) AddFollowing(ctx context.Context, userID, targetID string) error {
	return r.addToSet(ctx, columnFollowing, userID, targetID)
}

func (r *userRepository) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	return r.removeFromSet(ctx, columnFollowing, userID, targetID)
}

func (r *userRepository) AddFollower(ctx context.Context, userID, followerID string) error {
	return r.addToSet(ctx, columnFollowers, userID, followerID)
}

func (r *userRepository) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return r.removeFromSet(ctx, columnFollowers, userID, followerID)
}

// addToSet appends member to the array column unless it is already present.
func (r *userRepository) addToSet(ctx context.Context, column, userID, member string) error {
	query := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = CASE WHEN $2 = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2) END
		WHERE id = $1
	`, column)

	res, err := r.db.ExecContext(ctx, query, userID, member)
	if err != nil {
		return fmt.Errorf("failed to add to %s: %w", column, err)
	}
	if err := expectRow(res, model.ErrUserNotFound); err != nil {
		return err
	}

	publish(ctx, r.bus, realtime.UserTopic(userID), realtime.KindUpdated, userID)
	return nil
}

func (r *userRepository) removeFromSet(ctx context.Context, column, userID, member string) error {
	query := fmt.Sprintf(`UPDATE users SET %[1]s = array_remove(%[1]s, $2) WHERE id = $1`, column)

	res, err := r.db.ExecContext(ctx, query, userID, member)
	if err != nil {
		return fmt.Errorf("failed to remove from %s: %w", column, err)
	}
	if err := expectRow(res, model.ErrUserNotFound); err != nil {
		return err
	}

	publish(ctx, r.bus, realtime.UserTopic(userID), realtime.KindUpdated, userID)
	return nil
}

// expectRow returns notFound when the statement touched no row.
func expectRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
