package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/smallbiznis/billing/internal/invoice/format"
)

type invoiceResponse struct {
	invoicedomain.Invoice
	DisplayNumber string `json:"display_number"`
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	prefix := s.billingCfg.Get().Invoice.NumberPrefix
	c.JSON(http.StatusOK, invoiceResponse{
		Invoice:       inv,
		DisplayNumber: format.DisplayNumber(prefix, inv.InvoiceNumber),
	})
}
