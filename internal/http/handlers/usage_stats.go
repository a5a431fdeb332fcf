package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/models"
)

// StatsHandler serves the panel's usage analytics.
type StatsHandler struct {
	db *gorm.DB
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{db: db}
}

// usageAggregate is one ranking row, grouped by model or user.
type usageAggregate struct {
	Key        string `gorm:"column:agg_key"`
	TotalCount int64  `gorm:"column:total_count"`
	CostMicros int64  `gorm:"column:cost_micros"`
}

// Usage returns per-model and per-user cost rankings plus the overall time
// range of the ledger. An optional startTime/endTime window filters the
// rankings but not the range.
func (h *StatsHandler) Usage(c *gin.Context) {
	base := h.db.WithContext(c.Request.Context()).Model(&models.UsageRecord{})

	startQ := strings.TrimSpace(c.Query("startTime"))
	endQ := strings.TrimSpace(c.Query("endTime"))
	if startQ != "" && endQ != "" {
		start, errStart := time.Parse(time.RFC3339, startQ)
		end, errEnd := time.Parse(time.RFC3339, endQ)
		if errStart != nil || errEnd != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
			return
		}
		base = base.Where("use_time >= ? AND use_time <= ?", start, end)
	}

	var modelRows []usageAggregate
	if errScan := base.Session(&gorm.Session{}).
		Select("model_name AS agg_key, COUNT(*) AS total_count, COALESCE(SUM(cost_micros), 0) AS cost_micros").
		Group("model_name").
		Order("cost_micros DESC").
		Scan(&modelRows).Error; errScan != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	var userRows []usageAggregate
	if errScan := base.Session(&gorm.Session{}).
		Select("nickname AS agg_key, COUNT(*) AS total_count, COALESCE(SUM(cost_micros), 0) AS cost_micros").
		Group("nickname").
		Order("cost_micros DESC").
		Scan(&userRows).Error; errScan != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	// MIN/MAX on a datetime column loses the declared type on sqlite and
	// scans back as text, so read the range with ordered lookups instead.
	minTime, errMin := h.ledgerBound(c, "use_time ASC")
	if errMin != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}
	maxTime, errMax := h.ledgerBound(c, "use_time DESC")
	if errMax != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage failed"})
		return
	}

	modelsOut := make([]gin.H, 0, len(modelRows))
	for _, row := range modelRows {
		modelsOut = append(modelsOut, gin.H{
			"model_name":  row.Key,
			"total_count": row.TotalCount,
			"total_cost":  float64(row.CostMicros) / 1_000_000,
		})
	}
	usersOut := make([]gin.H, 0, len(userRows))
	for _, row := range userRows {
		usersOut = append(usersOut, gin.H{
			"nickname":    row.Key,
			"total_count": row.TotalCount,
			"total_cost":  float64(row.CostMicros) / 1_000_000,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"models": modelsOut,
		"users":  usersOut,
		"timeRange": gin.H{
			"minTime": minTime,
			"maxTime": maxTime,
		},
	})
}

// ledgerBound returns the first use_time under the given order, or nil when
// the ledger is empty.
func (h *StatsHandler) ledgerBound(c *gin.Context, order string) (*time.Time, error) {
	var record models.UsageRecord
	errFind := h.db.WithContext(c.Request.Context()).
		Select("use_time").
		Order(order).
		Take(&record).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	bound := record.UseTime.UTC()
	return &bound, nil
}
