package backup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/models"
)

// SnapshotVersion identifies the export document format.
const SnapshotVersion = "1.0"

// ErrFormatInvalid indicates an import payload is missing required top-level
// fields. It is detected before the store is touched.
var ErrFormatInvalid = errors.New("invalid import format")

// Snapshot is a full-database export document.
type Snapshot struct {
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Data      SnapshotData `json:"data"`
}

// SnapshotData carries all three tables.
type SnapshotData struct {
	Users            []UserRow   `json:"users"`
	ModelPrices      []PriceRow  `json:"model_prices"`
	UserUsageRecords []RecordRow `json:"user_usage_records"`
}

// UserRow is one exported user account. Monetary values are in currency
// units, matching what the panel displays.
type UserRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Balance   float64   `json:"balance"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// PriceRow is one exported model price policy.
type PriceRow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	InputPrice  float64        `json:"input_price"`
	OutputPrice float64        `json:"output_price"`
	PerMsgPrice float64        `json:"per_msg_price"`
	Meta        datatypes.JSON `json:"meta,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RecordRow is one exported ledger entry.
type RecordRow struct {
	ID           uint64    `json:"id"`
	UserID       string    `json:"user_id"`
	Nickname     string    `json:"nickname"`
	UseTime      time.Time `json:"use_time"`
	ModelName    string    `json:"model_name"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	BalanceAfter float64   `json:"balance_after"`
}

// Export reads all three tables into a snapshot document.
func Export(ctx context.Context, conn *gorm.DB) (*Snapshot, error) {
	var userRows []models.User
	if errFind := conn.WithContext(ctx).Order("id ASC").Find(&userRows).Error; errFind != nil {
		return nil, fmt.Errorf("backup: export users: %w", errFind)
	}
	var priceRows []models.ModelPrice
	if errFind := conn.WithContext(ctx).Order("id ASC").Find(&priceRows).Error; errFind != nil {
		return nil, fmt.Errorf("backup: export model prices: %w", errFind)
	}
	var recordRows []models.UsageRecord
	if errFind := conn.WithContext(ctx).Order("id ASC").Find(&recordRows).Error; errFind != nil {
		return nil, fmt.Errorf("backup: export usage records: %w", errFind)
	}

	snapshot := &Snapshot{
		Version:   SnapshotVersion,
		Timestamp: time.Now().UTC(),
		Data: SnapshotData{
			Users:            make([]UserRow, 0, len(userRows)),
			ModelPrices:      make([]PriceRow, 0, len(priceRows)),
			UserUsageRecords: make([]RecordRow, 0, len(recordRows)),
		},
	}
	for _, u := range userRows {
		snapshot.Data.Users = append(snapshot.Data.Users, UserRow{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      u.Role,
			Balance:   u.Balance(),
			Deleted:   u.Deleted,
			CreatedAt: u.CreatedAt.UTC(),
		})
	}
	for _, p := range priceRows {
		snapshot.Data.ModelPrices = append(snapshot.Data.ModelPrices, PriceRow{
			ID:          p.ID,
			Name:        p.Name,
			InputPrice:  p.InputPrice,
			OutputPrice: p.OutputPrice,
			PerMsgPrice: p.PerMsgPrice,
			Meta:        p.Meta,
			UpdatedAt:   p.UpdatedAt.UTC(),
		})
	}
	for _, r := range recordRows {
		snapshot.Data.UserUsageRecords = append(snapshot.Data.UserUsageRecords, RecordRow{
			ID:           r.ID,
			UserID:       r.UserID,
			Nickname:     r.Nickname,
			UseTime:      r.UseTime.UTC(),
			ModelName:    r.ModelName,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			Cost:         r.Cost(),
			BalanceAfter: r.BalanceAfter(),
		})
	}
	return snapshot, nil
}

// Import replaces the whole database with the snapshot's contents inside one
// transaction. Any row failure aborts the entire import.
func Import(ctx context.Context, conn *gorm.DB, snapshot *Snapshot) error {
	if snapshot == nil || strings.TrimSpace(snapshot.Version) == "" {
		return fmt.Errorf("%w: missing version", ErrFormatInvalid)
	}
	if snapshot.Data.Users == nil && snapshot.Data.ModelPrices == nil && snapshot.Data.UserUsageRecords == nil {
		return fmt.Errorf("%w: missing data", ErrFormatInvalid)
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// TRUNCATE is not portable to sqlite, so clear with unscoped deletes.
		for _, table := range []string{"user_usage_records", "model_prices", "users"} {
			if errDelete := tx.Exec("DELETE FROM " + table).Error; errDelete != nil {
				return fmt.Errorf("backup: clear %s: %w", table, errDelete)
			}
		}

		for _, row := range snapshot.Data.Users {
			user := models.User{
				ID:            row.ID,
				Email:         row.Email,
				Name:          row.Name,
				Role:          row.Role,
				BalanceMicros: toMicros(row.Balance),
				Deleted:       row.Deleted,
				CreatedAt:     row.CreatedAt,
			}
			if errCreate := tx.Create(&user).Error; errCreate != nil {
				return fmt.Errorf("backup: import user %s: %w", row.ID, errCreate)
			}
		}
		for _, row := range snapshot.Data.ModelPrices {
			price := models.ModelPrice{
				ID:          row.ID,
				Name:        row.Name,
				InputPrice:  row.InputPrice,
				OutputPrice: row.OutputPrice,
				PerMsgPrice: row.PerMsgPrice,
				Meta:        row.Meta,
				UpdatedAt:   row.UpdatedAt,
			}
			if errCreate := tx.Create(&price).Error; errCreate != nil {
				return fmt.Errorf("backup: import model price %s: %w", row.ID, errCreate)
			}
		}
		for _, row := range snapshot.Data.UserUsageRecords {
			record := models.UsageRecord{
				ID:                 row.ID,
				UserID:             row.UserID,
				Nickname:           row.Nickname,
				UseTime:            row.UseTime,
				ModelName:          row.ModelName,
				InputTokens:        row.InputTokens,
				OutputTokens:       row.OutputTokens,
				CostMicros:         toMicros(row.Cost),
				BalanceAfterMicros: toMicros(row.BalanceAfter),
			}
			if errCreate := tx.Create(&record).Error; errCreate != nil {
				return fmt.Errorf("backup: import usage record %d: %w", row.ID, errCreate)
			}
		}
		return nil
	})
}

func toMicros(v float64) int64 {
	return int64(math.Round(v * 1_000_000))
}
