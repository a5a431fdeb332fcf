package billing

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/models"
	"github.com/openwebui-monitor/server/internal/pricing"
	"github.com/openwebui-monitor/server/internal/tokencount"
)

func newTestOrchestrator(t *testing.T, conn *gorm.DB, defaults pricing.Defaults) *Orchestrator {
	t.Helper()
	counter, errCounter := tokencount.NewCounter()
	if errCounter != nil {
		t.Fatalf("new counter: %v", errCounter)
	}
	return NewOrchestrator(pricing.NewResolver(conn, defaults), counter, NewLedger(conn))
}

func upstreamTranscript(promptTokens, completionTokens int64) []tokencount.Message {
	return []tokencount.Message{
		{Role: "user", Content: "hello"},
		{
			Role:    "assistant",
			Content: "hi",
			Info:    &tokencount.UpstreamCounts{PromptTokens: promptTokens, CompletionTokens: completionTokens},
		},
	}
}

func TestOrchestratorBillsTokenPricedModel(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 10_000_000)

	price := models.ModelPrice{ID: "gpt-x", Name: "gpt-x", InputPrice: 2, OutputPrice: 6, PerMsgPrice: models.PerMessageDisabled}
	if errCreate := conn.Create(&price).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}

	orch := newTestOrchestrator(t, conn, pricing.Defaults{InputPrice: 60, OutputPrice: 60, PerMsgPrice: models.PerMessageDisabled})
	result, errBill := orch.Bill(context.Background(), Event{
		UserID:   "u1",
		UserName: "Alice",
		ModelID:  "gpt-x",
		Messages: upstreamTranscript(500_000, 100_000),
	})
	if errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}
	if result.InputTokens != 500_000 || result.OutputTokens != 100_000 {
		t.Fatalf("unexpected token counts: %+v", result)
	}
	if result.TotalCost() != 1.6 {
		t.Fatalf("expected cost 1.6, got %v", result.TotalCost())
	}
	if result.NewBalance() != 8.4 {
		t.Fatalf("expected balance 8.4, got %v", result.NewBalance())
	}
}

func TestOrchestratorBillsPerMessageModel(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 10_000_000)

	price := models.ModelPrice{ID: "flat-model", Name: "flat-model", InputPrice: 2, OutputPrice: 6, PerMsgPrice: 0.05}
	if errCreate := conn.Create(&price).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}

	orch := newTestOrchestrator(t, conn, pricing.Defaults{PerMsgPrice: models.PerMessageDisabled})
	result, errBill := orch.Bill(context.Background(), Event{
		UserID:   "u1",
		UserName: "Alice",
		ModelID:  "flat-model",
		Messages: upstreamTranscript(123_456, 7_890),
	})
	if errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}
	if result.TotalCost() != 0.05 {
		t.Fatalf("expected flat cost 0.05, got %v", result.TotalCost())
	}
	if result.NewBalance() != 9.95 {
		t.Fatalf("expected balance 9.95, got %v", result.NewBalance())
	}
}

func TestOrchestratorSeedsUnseenModelWithDefaults(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 100_000_000)

	orch := newTestOrchestrator(t, conn, pricing.Defaults{InputPrice: 60, OutputPrice: 60, PerMsgPrice: models.PerMessageDisabled})
	result, errBill := orch.Bill(context.Background(), Event{
		UserID:   "u1",
		ModelID:  "fresh-model",
		Messages: upstreamTranscript(1_000, 1_000),
	})
	if errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}
	// 2000 tokens at 60 per 1M each side.
	if result.CostMicros != 120_000 {
		t.Fatalf("expected cost 120000 micros, got %d", result.CostMicros)
	}

	var price models.ModelPrice
	if errFind := conn.Where("id = ?", "fresh-model").Take(&price).Error; errFind != nil {
		t.Fatalf("load seeded price: %v", errFind)
	}
	if price.InputPrice != 60 || price.OutputPrice != 60 || price.PerMsgPrice != models.PerMessageDisabled {
		t.Fatalf("unexpected seeded prices: %+v", price)
	}

	var record models.UsageRecord
	if errFind := conn.Order("id DESC").Take(&record).Error; errFind != nil {
		t.Fatalf("load record: %v", errFind)
	}
	if record.Nickname != "Unknown User" {
		t.Fatalf("expected default nickname, got %q", record.Nickname)
	}
}

func TestOrchestratorKeepsMirroredDisplayName(t *testing.T) {
	conn := openTestDB(t)
	createTestUser(t, conn, "u1", 10_000_000)

	// The catalog mirror stored a human display name for this id.
	price := models.ModelPrice{ID: "gpt-x", Name: "GPT X", InputPrice: 2, OutputPrice: 6, PerMsgPrice: models.PerMessageDisabled}
	if errCreate := conn.Create(&price).Error; errCreate != nil {
		t.Fatalf("create price: %v", errCreate)
	}

	orch := newTestOrchestrator(t, conn, pricing.Defaults{PerMsgPrice: models.PerMessageDisabled})
	if _, errBill := orch.Bill(context.Background(), Event{
		UserID:   "u1",
		ModelID:  "gpt-x",
		Messages: upstreamTranscript(10, 10),
	}); errBill != nil {
		t.Fatalf("bill: %v", errBill)
	}

	var kept models.ModelPrice
	if errFind := conn.Where("id = ?", "gpt-x").Take(&kept).Error; errFind != nil {
		t.Fatalf("load price: %v", errFind)
	}
	if kept.Name != "GPT X" {
		t.Fatalf("billing must not overwrite the display name, got %q", kept.Name)
	}

	var record models.UsageRecord
	if errFind := conn.Order("id DESC").Take(&record).Error; errFind != nil {
		t.Fatalf("load record: %v", errFind)
	}
	if record.ModelName != "GPT X" {
		t.Fatalf("ledger must carry the display name, got %q", record.ModelName)
	}
}

func TestOrchestratorUnknownUserLeavesStoreUnchanged(t *testing.T) {
	conn := openTestDB(t)

	orch := newTestOrchestrator(t, conn, pricing.Defaults{InputPrice: 60, OutputPrice: 60, PerMsgPrice: models.PerMessageDisabled})
	_, errBill := orch.Bill(context.Background(), Event{
		UserID:   "ghost",
		ModelID:  "gpt-x",
		Messages: upstreamTranscript(10, 10),
	})
	if !errors.Is(errBill, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", errBill)
	}
	if got := ErrorType(errBill); got != "USER_NOT_FOUND" {
		t.Fatalf("expected USER_NOT_FOUND error type, got %q", got)
	}

	var recordCount int64
	if errCount := conn.Model(&models.UsageRecord{}).Count(&recordCount).Error; errCount != nil {
		t.Fatalf("count records: %v", errCount)
	}
	if recordCount != 0 {
		t.Fatalf("expected no ledger rows, got %d", recordCount)
	}
}

func TestOrchestratorRejectsBlankEvent(t *testing.T) {
	conn := openTestDB(t)
	orch := newTestOrchestrator(t, conn, pricing.Defaults{PerMsgPrice: models.PerMessageDisabled})

	if _, errBill := orch.Bill(context.Background(), Event{UserID: " ", ModelID: "gpt-x"}); !errors.Is(errBill, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank user, got %v", errBill)
	}
	if _, errBill := orch.Bill(context.Background(), Event{UserID: "u1", ModelID: "  "}); !errors.Is(errBill, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank model, got %v", errBill)
	}
}
