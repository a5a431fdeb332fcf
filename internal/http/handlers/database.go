package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/backup"
)

// DatabaseHandler serves whole-database snapshot export and import.
type DatabaseHandler struct {
	db *gorm.DB
}

// NewDatabaseHandler constructs a DatabaseHandler.
func NewDatabaseHandler(db *gorm.DB) *DatabaseHandler {
	return &DatabaseHandler{db: db}
}

// Export downloads a JSON snapshot of all three tables.
func (h *DatabaseHandler) Export(c *gin.Context) {
	snapshot, errExport := backup.Export(c.Request.Context(), h.db)
	if errExport != nil {
		log.WithError(errExport).Error("database export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := fmt.Sprintf("usage_meter_backup_%s.json", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.JSON(http.StatusOK, snapshot)
}

// Import replaces the whole database with an uploaded snapshot. The import
// runs in one transaction; a malformed payload is rejected before any write
// and any row failure rolls everything back.
func (h *DatabaseHandler) Import(c *gin.Context) {
	var snapshot backup.Snapshot
	if errBind := c.ShouldBindJSON(&snapshot); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	if errImport := backup.Import(c.Request.Context(), h.db, &snapshot); errImport != nil {
		if errors.Is(errImport, backup.ErrFormatInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errImport.Error()})
			return
		}
		log.WithError(errImport).Error("database import failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "import failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
