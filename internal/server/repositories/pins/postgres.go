package pins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/dbx"
	"github.com/dmitrijs2005/authbridge/internal/server/models"
)

// PostgresRepository works over dbx.DBTX, so it runs inside or outside a
// transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserPin, error) {
	query := `
		SELECT user_id, salt, updated_at
		FROM user_pins
		WHERE user_id = $1
	`
	pin := &models.UserPin{}
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&pin.UserID, &pin.Salt, &pin.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return pin, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, userID, salt string) error {
	query := `
		INSERT INTO user_pins (user_id, salt, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET salt = EXCLUDED.salt, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, salt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	query := `
		DELETE FROM user_pins
		WHERE user_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
