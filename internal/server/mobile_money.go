package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"go.uber.org/zap"
)

func (s *Server) InitiateMobileMoney(c *gin.Context) {
	var req mobilemoneydomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set(obscontext.GinProviderKey, strings.ToLower(strings.TrimSpace(req.Provider)))

	txn, err := s.mobileMoneySvc.Initiate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) GetMobileMoneyTransaction(c *gin.Context) {
	txn, err := s.mobileMoneySvc.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

// HandleMobileMoneyCallback applies an already-normalised outcome to one
// transaction. Stale deliveries succeed with stale set.
func (s *Server) HandleMobileMoneyCallback(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req mobilemoneydomain.CallbackRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TransactionID = c.Param("id")
	req.RawPayload = payload

	result, err := s.mobileMoneySvc.HandleCallback(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obscontext.GinProviderKey, string(result.Transaction.Provider))

	c.JSON(http.StatusOK, gin.H{
		"data":  result.Transaction,
		"stale": result.Stale,
	})
}

// HandleProviderCallback receives a raw provider webhook.
func (s *Server) HandleProviderCallback(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	c.Set(obscontext.GinProviderKey, provider)

	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.mobileMoneySvc.IngestProviderCallback(c.Request.Context(), provider, payload, c.Request.Header)
	if errors.Is(err, mobilemoneydomain.ErrCallbackIgnored) {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		if errors.Is(err, mobilemoneydomain.ErrInvalidSignature) {
			s.log.Warn("mobile_money.callback.rejected",
				zap.String("provider", provider),
				zap.Error(err),
			)
		}
		AbortWithError(c, err)
		return
	}

	status := "processed"
	if result.Stale {
		status = "stale"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"transaction_id": result.Transaction.ID.String(),
	})
}
