package handlers

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/openwebui-monitor/server/internal/catalog"
	"github.com/openwebui-monitor/server/internal/models"
	"github.com/openwebui-monitor/server/internal/pricing"
)

// ModelPriceHandler serves the model list and the admin price editor.
type ModelPriceHandler struct {
	resolver *pricing.Resolver
	catalog  *catalog.Client
}

// NewModelPriceHandler constructs a ModelPriceHandler.
func NewModelPriceHandler(resolver *pricing.Resolver, catalogClient *catalog.Client) *ModelPriceHandler {
	return &ModelPriceHandler{resolver: resolver, catalog: catalogClient}
}

// formatPolicy shapes a price policy for the panel.
func formatPolicy(p *models.ModelPrice) gin.H {
	return gin.H{
		"id":            p.ID,
		"name":          p.Name,
		"input_price":   p.InputPrice,
		"output_price":  p.OutputPrice,
		"per_msg_price": p.PerMsgPrice,
		"updated_at":    p.UpdatedAt.UTC(),
	}
}

// List mirrors the upstream catalog into the price table and returns every
// model with its current policy. Unseen models get a default policy row.
func (h *ModelPriceHandler) List(c *gin.Context) {
	if !h.catalog.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream domain not configured"})
		return
	}

	upstream, errFetch := h.catalog.Models(c.Request.Context())
	if errFetch != nil {
		log.WithError(errFetch).Error("fetch upstream model catalog failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch upstream models failed"})
		return
	}

	out := make([]gin.H, 0, len(upstream))
	for _, model := range upstream {
		policy, errResolve := h.resolver.Resolve(c.Request.Context(), model.ID, model.Name)
		if errResolve != nil {
			log.WithError(errResolve).WithField("model", model.ID).Warn("resolve model price failed")
			continue
		}
		if len(model.Meta) > 0 {
			// Refresh the catalog metadata snapshot alongside the policy.
			_ = h.resolver.SetMeta(c.Request.Context(), model.ID, datatypes.JSON(model.Meta))
		}
		entry := formatPolicy(policy)
		entry["imageUrl"] = model.ImageURL()
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, out)
}

// priceUpdateItem is one entry of a batch price update.
type priceUpdateItem struct {
	ID          string   `json:"id"`
	InputPrice  *float64 `json:"input_price"`
	OutputPrice *float64 `json:"output_price"`
	PerMsgPrice *float64 `json:"per_msg_price"`
}

// priceUpdateRequest is the batch price update payload.
type priceUpdateRequest struct {
	Updates []priceUpdateItem `json:"updates"`
}

// UpdatePrices applies a batch of price updates.
//
// Malformed items (missing id, absent or non-finite prices) are skipped;
// invalid but well-formed items (negative real prices, unknown model) get a
// per-item error. One bad item never aborts its siblings.
func (h *ModelPriceHandler) UpdatePrices(c *gin.Context) {
	var body priceUpdateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	results := make([]gin.H, 0, len(body.Updates))
	for _, item := range body.Updates {
		id := strings.TrimSpace(item.ID)
		if id == "" || !wellFormed(item) {
			continue
		}

		perMsg := float64(models.PerMessageDisabled)
		if item.PerMsgPrice != nil {
			perMsg = *item.PerMsgPrice
		}

		policy, errUpdate := h.resolver.Update(c.Request.Context(), id, *item.InputPrice, *item.OutputPrice, perMsg)
		if errUpdate != nil {
			message := "update failed"
			switch {
			case errors.Is(errUpdate, pricing.ErrInvalidPrice):
				message = "invalid price"
			case errors.Is(errUpdate, pricing.ErrModelNotFound):
				message = "model not found"
			}
			results = append(results, gin.H{"id": id, "success": false, "error": message})
			continue
		}
		results = append(results, gin.H{"id": id, "success": true, "data": formatPolicy(policy)})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// wellFormed reports whether a batch item carries finite prices for both
// token rates. The per-message price may be omitted (sentinel applies).
func wellFormed(item priceUpdateItem) bool {
	finite := func(v *float64) bool {
		return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
	}
	if !finite(item.InputPrice) || !finite(item.OutputPrice) {
		return false
	}
	if item.PerMsgPrice != nil && (math.IsNaN(*item.PerMsgPrice) || math.IsInf(*item.PerMsgPrice, 0)) {
		return false
	}
	return true
}
