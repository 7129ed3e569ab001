package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
)

type quoteLineRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPriceHT decimal.Decimal `json:"unit_price_ht"`
	VATRate     decimal.Decimal `json:"vat_rate"`
}

type createQuoteRequest struct {
	ClientID       string             `json:"client_id" binding:"required"`
	ClientName     string             `json:"client_name"`
	ClientEmail    string             `json:"client_email" binding:"omitempty,email"`
	Title          string             `json:"title"`
	Lines          []quoteLineRequest `json:"lines" binding:"required,min=1,dive"`
	DepositPercent *decimal.Decimal   `json:"deposit_percent"`
}

type replaceLinesRequest struct {
	Lines []quoteLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type depositPercentRequest struct {
	DepositPercent *decimal.Decimal `json:"deposit_percent" binding:"required"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.quoteSvc.Create(c.Request.Context(), quotedomain.CreateQuoteRequest{
		ClientID:       strings.TrimSpace(req.ClientID),
		ClientName:     strings.TrimSpace(req.ClientName),
		ClientEmail:    strings.TrimSpace(req.ClientEmail),
		Title:          strings.TrimSpace(req.Title),
		Lines:          toLineInputs(req.Lines),
		DepositPercent: req.DepositPercent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListQuotes(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.quoteSvc.List(c.Request.Context(), quotedomain.ListQuoteRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
		Status:    query.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetQuoteByID(c *gin.Context) {
	resp, err := s.quoteSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReplaceQuoteLines(c *gin.Context) {
	var req replaceLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.quoteSvc.UpdateLines(c.Request.Context(), quotedomain.UpdateLinesRequest{
		ID:    c.Param("id"),
		Lines: toLineInputs(req.Lines),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateDepositPercent(c *gin.Context) {
	var req depositPercentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.quoteSvc.UpdateDepositPercent(c.Request.Context(), quotedomain.UpdateDepositPercentRequest{
		ID:             c.Param("id"),
		DepositPercent: *req.DepositPercent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SendQuote(c *gin.Context) {
	s.transitionQuote(c, s.quoteSvc.Send)
}

func (s *Server) CompleteQuote(c *gin.Context) {
	s.transitionQuote(c, s.quoteSvc.Complete)
}

func (s *Server) CancelQuote(c *gin.Context) {
	s.transitionQuote(c, s.quoteSvc.Cancel)
}

func (s *Server) transitionQuote(c *gin.Context, fn func(ctx context.Context, id string) (quotedomain.Quote, error)) {
	resp, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func toLineInputs(lines []quoteLineRequest) []quotedomain.LineInput {
	out := make([]quotedomain.LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, quotedomain.LineInput{
			Description: strings.TrimSpace(line.Description),
			Quantity:    line.Quantity,
			UnitPriceHT: line.UnitPriceHT,
			VATRate:     line.VATRate,
		})
	}
	return out
}
