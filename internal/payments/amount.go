package payments

import (
	"fmt"
	"math/rand/v2"
)

// Charge amount constants for the preview fee.
const (
	// BaseFeeCents is the preview fee before the per-session offset (R$9,90).
	BaseFeeCents = 990
	// OffsetRange is the number of possible per-session cent offsets. The
	// offset turns the charge amount into a weak join key for matching
	// anonymous payment notifications to sessions.
	OffsetRange = 88
)

// NewChargeAmount assigns a charge amount for a new payment-pending session:
// the base fee plus a random cent offset. Collisions across concurrent
// sessions are possible but statistically rare within the matching window.
func NewChargeAmount() int {
	return BaseFeeCents + rand.IntN(OffsetRange)
}

// FormatBRL renders an amount in cents as a Brazilian Real string, e.g.
// 1007 → "R$ 10,07".
func FormatBRL(cents int) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}
