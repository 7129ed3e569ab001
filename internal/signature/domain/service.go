package domain

import (
	"context"
	"errors"

	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
)

type SignRequest struct {
	QuoteID    string
	SignerName string
	Artifact   Artifact
}

type Service interface {
	Sign(ctx context.Context, req SignRequest) (quotedomain.Quote, error)
}

var (
	ErrInvalidArtifact = errors.New("invalid_signature_artifact")
	ErrInvalidSigner   = errors.New("invalid_signer_name")
)
