package service

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/signature/domain"
	"golang.org/x/crypto/blake2b"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func validateArtifact(artifact domain.Artifact) error {
	if len(artifact.Content) == 0 || len(artifact.Content) > domain.MaxArtifactBytes {
		return domain.ErrInvalidArtifact
	}

	switch normalizeContentType(artifact.ContentType) {
	case domain.ContentTypePNG:
		if !bytes.HasPrefix(artifact.Content, pngMagic) {
			return domain.ErrInvalidArtifact
		}
	case domain.ContentTypeSVG:
		if !bytes.Contains(artifact.Content, []byte("<svg")) {
			return domain.ErrInvalidArtifact
		}
	case domain.ContentTypeStroke:
		if !json.Valid(artifact.Content) {
			return domain.ErrInvalidArtifact
		}
	default:
		return domain.ErrInvalidArtifact
	}
	return nil
}

func normalizeContentType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return value
}

func digest(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
