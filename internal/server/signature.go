package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	signaturedomain "github.com/smallbiznis/quoteflow/internal/signature/domain"
)

type signQuoteRequest struct {
	SignerName  string `json:"signer_name" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Content     string `json:"content" binding:"required,base64"`
}

func (s *Server) SignQuote(c *gin.Context) {
	var req signQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		AbortWithError(c, signaturedomain.ErrInvalidArtifact)
		return
	}

	resp, err := s.signatureSvc.Sign(c.Request.Context(), signaturedomain.SignRequest{
		QuoteID:    c.Param("id"),
		SignerName: strings.TrimSpace(req.SignerName),
		Artifact: signaturedomain.Artifact{
			ContentType: strings.TrimSpace(req.ContentType),
			Content:     content,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
