package billing

import (
	"fmt"
	"math"

	"github.com/openwebui-monitor/server/internal/models"
)

// CostMicros prices a billed event against a policy, in micros.
//
// A non-negative per-message price wins over token pricing and ignores the
// counts entirely. Token prices are expressed per 1,000,000 tokens, so a
// price is numerically the micro-cost of a single token and the result stays
// in integer micros with one rounding per event.
func CostMicros(inputTokens, outputTokens int64, policy *models.ModelPrice) (int64, error) {
	if policy == nil {
		return 0, fmt.Errorf("%w: nil policy", ErrInvalidInput)
	}
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("%w: negative token count", ErrInvalidInput)
	}
	if math.IsNaN(policy.InputPrice) || math.IsInf(policy.InputPrice, 0) ||
		math.IsNaN(policy.OutputPrice) || math.IsInf(policy.OutputPrice, 0) ||
		math.IsNaN(policy.PerMsgPrice) || math.IsInf(policy.PerMsgPrice, 0) {
		return 0, fmt.Errorf("%w: non-finite price", ErrInvalidInput)
	}

	if policy.PerMessage() {
		return int64(math.Round(policy.PerMsgPrice * 1_000_000)), nil
	}

	total := float64(inputTokens)*policy.InputPrice + float64(outputTokens)*policy.OutputPrice
	return int64(math.Round(total)), nil
}
