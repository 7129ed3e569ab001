package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	depositdomain "github.com/smallbiznis/quoteflow/internal/deposit/domain"
)

type markDepositPaidRequest struct {
	Method string `json:"method" binding:"required"`
}

func (s *Server) MarkDepositPaid(c *gin.Context) {
	var req markDepositPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.depositSvc.MarkDepositPaid(c.Request.Context(), depositdomain.MarkDepositPaidRequest{
		QuoteID: c.Param("id"),
		Method:  req.Method,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RequestCheckout(c *gin.Context) {
	resp, err := s.depositSvc.RequestCheckout(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListQuotePayments(c *gin.Context) {
	resp, err := s.depositSvc.ListPayments(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
