package billing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/db"
	"github.com/openwebui-monitor/server/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func createTestUser(t *testing.T, conn *gorm.DB, id string, balanceMicros int64) {
	t.Helper()
	user := models.User{ID: id, Email: id + "@example.com", Name: id, Role: models.RoleUser, BalanceMicros: balanceMicros}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
}

func TestBillDebitsAndRecords(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 10_000_000)

	ledger := NewLedger(conn)
	newBalance, errBill := ledger.Bill(context.Background(), "u1", "Alice", "gpt-x", 500_000, 100_000, 1_600_000)
	if errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}
	if newBalance != 8_400_000 {
		t.Fatalf("expected balance 8.4, got %d micros", newBalance)
	}

	var record models.UsageRecord
	if errFind := conn.Order("id DESC").Take(&record).Error; errFind != nil {
		t.Fatalf("load record: %v", errFind)
	}
	if record.UserID != "u1" || record.Nickname != "Alice" || record.ModelName != "gpt-x" {
		t.Fatalf("unexpected record identity: %+v", record)
	}
	if record.CostMicros != 1_600_000 || record.BalanceAfterMicros != 8_400_000 {
		t.Fatalf("unexpected record amounts: %+v", record)
	}
}

func TestBillAllowsOverdraft(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 100_000)

	ledger := NewLedger(conn)
	newBalance, errBill := ledger.Bill(context.Background(), "u1", "Alice", "gpt-x", 1, 1, 500_000)
	if errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}
	if newBalance != -400_000 {
		t.Fatalf("expected negative balance -0.4, got %d micros", newBalance)
	}
}

func TestBillUnknownUserRollsBack(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 1_000_000)

	ledger := NewLedger(conn)
	if _, errBill := ledger.Bill(context.Background(), "ghost", "Ghost", "gpt-x", 1, 1, 100); !errors.Is(errBill, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", errBill)
	}

	var recordCount int64
	if errCount := conn.Model(&models.UsageRecord{}).Count(&recordCount).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if recordCount != 0 {
		t.Fatalf("expected no orphan ledger rows, got %d", recordCount)
	}

	var user models.User
	if errFind := conn.Where("id = ?", "u1").Take(&user).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	if user.BalanceMicros != 1_000_000 {
		t.Fatalf("expected untouched balance, got %d", user.BalanceMicros)
	}
}

func TestBillConcurrentDebitsAreNotLost(t *testing.T) {
	conn := openTestDB(t)

	const (
		startMicros = 100_000_000
		costMicros  = 250_000
		workers     = 10
		perWorker   = 5
	)
	createTestUser(t, conn, "u1", startMicros)

	ledger := NewLedger(conn)
	var wg sync.WaitGroup
	errCh := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, errBill := ledger.Bill(context.Background(), "u1", "Alice", "gpt-x", 10, 10, costMicros); errBill != nil {
					errCh <- errBill
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for errBill := range errCh {
		t.Fatalf("concurrent bill: %v", errBill)
	}

	var user models.User
	if errFind := conn.Where("id = ?", "u1").Take(&user).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	want := int64(startMicros - workers*perWorker*costMicros)
	if user.BalanceMicros != want {
		t.Fatalf("expected balance %d, got %d", want, user.BalanceMicros)
	}

	var recordCount int64
	if errCount := conn.Model(&models.UsageRecord{}).Count(&recordCount).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if recordCount != workers*perWorker {
		t.Fatalf("expected %d ledger rows, got %d", workers*perWorker, recordCount)
	}
}
