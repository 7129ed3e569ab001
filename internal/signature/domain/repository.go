package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, artifact *StoredArtifact) error
	FindByRef(ctx context.Context, db *gorm.DB, ref string) (*StoredArtifact, error)
}
