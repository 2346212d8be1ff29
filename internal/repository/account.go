package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ddpcore/internal/model"
)

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts a credential record. A duplicate email yields model.ErrEmailExists.
func (r *accountRepository) Create(ctx context.Context, a *model.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO accounts (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query, a.ID, a.Email, a.PasswordHash, a.DisplayName).Scan(&a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.ErrEmailExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT id, email, password_hash, display_name, created_at FROM accounts WHERE email = $1`
	return r.get(ctx, query, email)
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT id, email, password_hash, display_name, created_at FROM accounts WHERE id = $1`
	return r.get(ctx, query, id)
}

func (r *accountRepository) get(ctx context.Context, query string, arg string) (*model.Account, error) {
	var a model.Account
	if err := r.db.GetContext(ctx, &a, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *accountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
