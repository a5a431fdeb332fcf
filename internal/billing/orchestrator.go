package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/openwebui-monitor/server/internal/pricing"
	"github.com/openwebui-monitor/server/internal/tokencount"
)

// Event is one inbound billing notification from the upstream gateway.
type Event struct {
	UserID   string
	UserName string
	ModelID  string
	Messages []tokencount.Message
}

// Result reports a successfully billed event.
type Result struct {
	InputTokens      int64
	OutputTokens     int64
	CostMicros       int64
	NewBalanceMicros int64
}

// TotalCost returns the cost in currency units.
func (r *Result) TotalCost() float64 {
	return float64(r.CostMicros) / 1_000_000
}

// NewBalance returns the post-debit balance in currency units.
func (r *Result) NewBalance() float64 {
	return float64(r.NewBalanceMicros) / 1_000_000
}

// Orchestrator sequences one billing event: resolve the price policy, count
// tokens, compute cost, then debit and record transactionally.
//
// Each event is one-shot: nothing is retried internally and there is no
// idempotency tracking, so redelivered events bill again. Retrying is the
// caller's decision.
type Orchestrator struct {
	prices  *pricing.Resolver
	counter *tokencount.Counter
	ledger  *Ledger
}

// NewOrchestrator wires the billing pipeline.
func NewOrchestrator(prices *pricing.Resolver, counter *tokencount.Counter, ledger *Ledger) *Orchestrator {
	return &Orchestrator{prices: prices, counter: counter, ledger: ledger}
}

// Bill processes one event and returns the outcome.
func (o *Orchestrator) Bill(ctx context.Context, event Event) (*Result, error) {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	modelID := strings.TrimSpace(event.ModelID)
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrInvalidInput)
	}
	nickname := strings.TrimSpace(event.UserName)
	if nickname == "" {
		nickname = "Unknown User"
	}

	policy, errResolve := o.prices.ResolveID(ctx, modelID)
	if errResolve != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, errResolve)
	}

	counts, errCount := o.counter.Count(event.Messages)
	if errCount != nil {
		return nil, errCount
	}

	costMicros, errCost := CostMicros(counts.InputTokens, counts.OutputTokens, policy)
	if errCost != nil {
		return nil, errCost
	}

	newBalance, errBill := o.ledger.Bill(ctx, userID, nickname, policy.Name, counts.InputTokens, counts.OutputTokens, costMicros)
	if errBill != nil {
		if errors.Is(errBill, ErrUserNotFound) || errors.Is(errBill, ErrInvalidInput) {
			return nil, errBill
		}
		log.WithError(errBill).Error("billing transaction failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, errBill)
	}

	return &Result{
		InputTokens:      counts.InputTokens,
		OutputTokens:     counts.OutputTokens,
		CostMicros:       costMicros,
		NewBalanceMicros: newBalance,
	}, nil
}
