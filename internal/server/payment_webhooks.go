package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paysync/internal/observability/context"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"go.uber.org/zap"
)

func (s *Server) HandleDefaultWebhook(c *gin.Context) {
	s.handleWebhook(c, s.cfg.Payment.DefaultProvider)
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	s.handleWebhook(c, c.Param("provider"))
}

func (s *Server) handleWebhook(c *gin.Context, provider string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !s.adapters.ProviderExists(provider) {
		AbortWithError(c, paymentdomain.ErrProviderNotFound)
		return
	}
	c.Request = c.Request.WithContext(obscontext.WithProvider(c.Request.Context(), provider))

	payload, err := s.readBody(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if kind, ok := paymentdomain.KindOf(err); ok && kind == paymentdomain.KindDuplicate {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("webhook received",
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.Bool("duplicate", result.Duplicate),
		zap.Bool("ignored", result.Ignored),
		zap.Bool("applied", result.Applied),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// readBody returns the exact request bytes, bounded by the configured size.
func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	limit := s.cfg.Payment.WebhookMaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, paymentdomain.ErrPayloadTooLarge
		}
		return nil, paymentdomain.Wrap(paymentdomain.ErrInvalidPayload, err)
	}
	return payload, nil
}
