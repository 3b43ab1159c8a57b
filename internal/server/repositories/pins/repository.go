// Package pins declares the repository contract for per-user PIN salts.
package pins

import (
	"context"

	"github.com/dmitrijs2005/authbridge/internal/server/models"
)

// Repository stores one PIN row per user.
type Repository interface {
	// Get returns common.ErrorNotFound when the user has no row.
	Get(ctx context.Context, userID string) (*models.UserPin, error)

	// Upsert stores salt for userID, replacing any previous salt.
	Upsert(ctx context.Context, userID, salt string) error

	// Delete removes the row; a missing row is not an error.
	Delete(ctx context.Context, userID string) error
}
