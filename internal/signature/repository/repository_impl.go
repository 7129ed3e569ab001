package repository

import (
	"context"

	"github.com/smallbiznis/quoteflow/internal/signature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, artifact *domain.StoredArtifact) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO signature_artifacts (ref, quote_id, owner_id, content_type, content, digest, signer_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.Ref,
		artifact.QuoteID,
		artifact.OwnerID,
		artifact.ContentType,
		artifact.Content,
		artifact.Digest,
		artifact.SignerName,
		artifact.CreatedAt,
	).Error
}

func (r *repo) FindByRef(ctx context.Context, db *gorm.DB, ref string) (*domain.StoredArtifact, error) {
	var artifact domain.StoredArtifact
	err := db.WithContext(ctx).Raw(
		`SELECT ref, quote_id, owner_id, content_type, content, digest, signer_name, created_at
		 FROM signature_artifacts
		 WHERE ref = ?`,
		ref,
	).Scan(&artifact).Error
	if err != nil {
		return nil, err
	}
	if artifact.Ref == "" {
		return nil, nil
	}
	return &artifact, nil
}
