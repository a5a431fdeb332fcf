package billing

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openwebui-monitor/server/internal/models"
)

// Ledger appends usage records and debits user balances.
//
// Bill is the only code path allowed to mutate a balance relative to its
// current value, and it always pairs the debit with exactly one ledger insert
// inside the same transaction.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger backed by GORM.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Bill debits costMicros from the user and writes the usage record, all in
// one transaction. It returns the post-debit balance in micros.
//
// The debit is a single relative UPDATE, so concurrent events for the same
// user serialize on the row lock and no decrement is lost; commit order
// between them is unspecified. A zero-row update means the user does not
// exist: the transaction rolls back with ErrUserNotFound and no ledger row
// is written.
func (l *Ledger) Bill(ctx context.Context, userID, nickname, modelName string, inputTokens, outputTokens, costMicros int64) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}

	var balanceAfter int64
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("balance_micros", gorm.Expr("balance_micros - ?", costMicros))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		// Same transaction, so this read observes the decrement above while
		// the row stays locked until commit.
		var user models.User
		if errFind := tx.Select("balance_micros").
			Where("id = ?", userID).
			Take(&user).Error; errFind != nil {
			return errFind
		}
		balanceAfter = user.BalanceMicros

		record := models.UsageRecord{
			UserID:             userID,
			Nickname:           nickname,
			UseTime:            time.Now().UTC(),
			ModelName:          modelName,
			InputTokens:        inputTokens,
			OutputTokens:       outputTokens,
			CostMicros:         costMicros,
			BalanceAfterMicros: balanceAfter,
		}
		return tx.Create(&record).Error
	})
	if errTx != nil {
		return 0, errTx
	}
	return balanceAfter, nil
}
