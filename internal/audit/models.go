package audit

import (
	"time"

	"tradepost/internal/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with financial significance that must
	// reconcile against the host ledger: registrations, sales, payouts.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics,
	// such as failed payout transfers.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Action names the marketplace operation an event records.
type Action string

const (
	ActionUserRegistered   Action = "user_registered"
	ActionItemListed       Action = "item_listed"
	ActionItemPurchased    Action = "item_purchased"
	ActionFundsWithdrawn   Action = "funds_withdrawn"
	ActionWithdrawalFailed Action = "withdrawal_failed"
)

// actionCategories maps each action to its category; Category falls back to
// operations for unknown actions so routing never drops an event.
var actionCategories = map[Action]EventCategory{
	ActionUserRegistered:   CategoryCompliance,
	ActionItemListed:       CategoryOperations,
	ActionItemPurchased:    CategoryCompliance,
	ActionFundsWithdrawn:   CategoryCompliance,
	ActionWithdrawalFailed: CategorySecurity,
}

// Category returns the routing category for the action.
func (a Action) Category() EventCategory {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Action    Action
	Category  EventCategory
	Timestamp time.Time
	// Actor is the ledger address that performed the action.
	Actor domain.Address
	// Counterparty is the other side of a value movement: the seller on a
	// purchase, empty otherwise.
	Counterparty domain.Address
	// ItemID is set for listing and purchase events; -1 otherwise.
	ItemID int64
	// Amount is the value moved in native units; 0 when no value moved.
	Amount int64
	// Reason carries failure detail for security events.
	Reason string
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string
	ClientIP  string
	UserAgent string
}
