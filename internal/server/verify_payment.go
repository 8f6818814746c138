package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paysync/internal/observability/context"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"go.uber.org/zap"
)

func (s *Server) HandleVerifyPayment(c *gin.Context) {
	payload, err := s.readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgConfirmMissingFields})
		return
	}

	var req paymentdomain.Confirmation
	if err := json.Unmarshal(payload, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgConfirmMissingFields})
		return
	}
	req.Provider = s.cfg.Payment.DefaultProvider
	c.Request = c.Request.WithContext(obscontext.WithProvider(c.Request.Context(), req.Provider))

	if err := s.verificationSvc.VerifyPayment(c.Request.Context(), req); err != nil {
		message := confirmErrorMessage(err)
		logger.FromContext(c.Request.Context()).Info("payment verification rejected",
			zap.String("reason", message),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
