package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/openwebui-monitor/server/internal/billing"
	"github.com/openwebui-monitor/server/internal/tokencount"
)

// BillHandler serves the billing event endpoint called by the gateway after
// each completed chat turn.
type BillHandler struct {
	orchestrator *billing.Orchestrator
}

// NewBillHandler constructs a BillHandler.
func NewBillHandler(orchestrator *billing.Orchestrator) *BillHandler {
	return &BillHandler{orchestrator: orchestrator}
}

// billRequest is the inbound billing event payload.
type billRequest struct {
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Model    string               `json:"model"`
	Messages []tokencount.Message `json:"messages"`
}

// Bill prices the event, debits the user, and records the ledger entry.
//
// There is no idempotency key: a redelivered event bills again, so callers
// must only retry events they know were not committed.
func (h *BillHandler) Bill(c *gin.Context) {
	var body billRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      "invalid json",
			"error_type": "INVALID_REQUEST",
		})
		return
	}

	result, errBill := h.orchestrator.Bill(c.Request.Context(), billing.Event{
		UserID:   body.User.ID,
		UserName: body.User.Name,
		ModelID:  body.Model,
		Messages: body.Messages,
	})
	if errBill != nil {
		log.WithError(errBill).WithFields(log.Fields{
			"user":  body.User.ID,
			"model": body.Model,
		}).Error("billing event failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":    false,
			"error":      errBill.Error(),
			"error_type": billing.ErrorType(errBill),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"inputTokens":  result.InputTokens,
		"outputTokens": result.OutputTokens,
		"totalCost":    result.TotalCost(),
		"newBalance":   result.NewBalance(),
	})
}
