package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const MaxArtifactBytes = 512 * 1024

const (
	ContentTypePNG    = "image/png"
	ContentTypeSVG    = "image/svg+xml"
	ContentTypeStroke = "application/json"
)

// Artifact is the captured signature as uploaded by the signer.
type Artifact struct {
	ContentType string
	Content     []byte
}

// StoredArtifact is the persisted, immutable signature evidence.
type StoredArtifact struct {
	Ref         string       `gorm:"column:ref;primaryKey" json:"ref"`
	QuoteID     snowflake.ID `gorm:"column:quote_id;not null" json:"quote_id"`
	OwnerID     snowflake.ID `gorm:"column:owner_id;not null" json:"owner_id"`
	ContentType string       `gorm:"column:content_type;not null" json:"content_type"`
	Content     []byte       `gorm:"column:content;not null" json:"-"`
	Digest      string       `gorm:"column:digest;not null" json:"digest"`
	SignerName  string       `gorm:"column:signer_name" json:"signer_name"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null" json:"created_at"`
}

func (StoredArtifact) TableName() string { return "signature_artifacts" }
