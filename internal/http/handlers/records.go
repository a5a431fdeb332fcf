package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/models"
)

// RecordHandler serves the panel's ledger views.
type RecordHandler struct {
	db *gorm.DB
}

// NewRecordHandler constructs a RecordHandler.
func NewRecordHandler(db *gorm.DB) *RecordHandler {
	return &RecordHandler{db: db}
}

// allowed sort fields for the records table.
var recordSortFields = map[string]string{
	"use_time":      "use_time",
	"model_name":    "model_name",
	"input_tokens":  "input_tokens",
	"output_tokens": "output_tokens",
	"cost":          "cost_micros",
	"balance_after": "balance_after_micros",
}

// filteredQuery applies the panel's user/model filters.
func (h *RecordHandler) filteredQuery(c *gin.Context) *gorm.DB {
	q := h.db.WithContext(c.Request.Context()).Model(&models.UsageRecord{})
	if usersQ := strings.TrimSpace(c.Query("users")); usersQ != "" {
		q = q.Where("nickname IN ?", strings.Split(usersQ, ","))
	}
	if modelsQ := strings.TrimSpace(c.Query("models")); modelsQ != "" {
		q = q.Where("model_name IN ?", strings.Split(modelsQ, ","))
	}
	return q
}

// List returns a page of ledger entries, newest first by default.
func (h *RecordHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	q := h.filteredQuery(c)

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query records failed"})
		return
	}

	order := "use_time DESC"
	if column, ok := recordSortFields[strings.TrimSpace(c.Query("sortField"))]; ok {
		direction := "ASC"
		if strings.EqualFold(c.Query("sortOrder"), "descend") || strings.EqualFold(c.Query("sortOrder"), "desc") {
			direction = "DESC"
		}
		order = column + " " + direction
	}

	var rows []models.UsageRecord
	if errFind := q.Order(order).
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query records failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, gin.H{
			"user_id":       r.UserID,
			"nickname":      r.Nickname,
			"use_time":      r.UseTime.UTC(),
			"model_name":    r.ModelName,
			"input_tokens":  r.InputTokens,
			"output_tokens": r.OutputTokens,
			"cost":          r.Cost(),
			"balance_after": r.BalanceAfter(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": out, "total": total})
}

// ExportCSV streams every ledger entry as a CSV download.
func (h *RecordHandler) ExportCSV(c *gin.Context) {
	var rows []models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("use_time DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query records failed"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename=usage_records.csv`)
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	header := []string{"user", "use_time", "model", "input_tokens", "output_tokens", "cost", "balance_after"}
	if errWrite := writer.Write(header); errWrite != nil {
		log.WithError(errWrite).Warn("write csv header failed")
		return
	}
	for i := range rows {
		r := &rows[i]
		record := []string{
			r.Nickname,
			r.UseTime.UTC().Format("2006-01-02 15:04:05"),
			r.ModelName,
			strconv.FormatInt(r.InputTokens, 10),
			strconv.FormatInt(r.OutputTokens, 10),
			fmt.Sprintf("%.4f", r.Cost()),
			fmt.Sprintf("%.4f", r.BalanceAfter()),
		}
		if errWrite := writer.Write(record); errWrite != nil {
			log.WithError(errWrite).Warn("write csv row failed")
			return
		}
	}
	writer.Flush()
}
