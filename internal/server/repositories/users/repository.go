// Package users declares and implements the account repository.
package users

import (
	"context"

	"github.com/survivalcodex/codex/internal/server/models"
)

type Repository interface {
	// Create inserts an account; a taken email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
	// GetByEmail matches case-insensitively; a miss yields common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
