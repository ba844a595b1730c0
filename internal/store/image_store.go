package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelvault/internal/domain"
)

var (
	// ErrImageNotFound covers both missing records and records owned by
	// someone else.
	ErrImageNotFound  = errors.New("image not found")
	ErrDuplicateImage = errors.New("image already exists")
)

type ImageStore interface {
	// Create persists rec atomically and returns it as stored. A derived
	// record whose parent does not exist for the same owner is rejected with
	// ErrImageNotFound.
	Create(ctx context.Context, rec domain.ImageRecord) (domain.ImageRecord, error)
	// ListByOwner returns owner's records, newest first.
	ListByOwner(ctx context.Context, owner string) ([]domain.ImageRecord, error)
	FindByIDAndOwner(ctx context.Context, id, owner string) (domain.ImageRecord, error)
	// ListDerivatives returns the records created from parentID, newest first.
	ListDerivatives(ctx context.Context, parentID, owner string) ([]domain.ImageRecord, error)
	Close() error
}
