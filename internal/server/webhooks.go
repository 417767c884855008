package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/billing/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandleWebhook ingests one processor event. Redeliveries of an already
// processed event are acknowledged so the processor stops retrying.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := c.Param("provider")

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if errors.Is(err, paymentdomain.ErrEventProcessed) {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
