package ledger

import (
	"context"
	"fmt"
	"sync"

	"tradepost/internal/domain"
)

// MemoryLedger simulates the host ledger in process. It backs local
// development and tests where no real ledger is reachable.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[domain.Address]int64
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates a ledger pre-funded with the given accounts.
func NewMemoryLedger(seed map[domain.Address]int64) *MemoryLedger {
	balances := make(map[domain.Address]int64, len(seed))
	for addr, amount := range seed {
		balances[addr] = amount
	}
	return &MemoryLedger{balances: balances}
}

// Deposit credits an address outside any transfer, the way an external
// deposit would land on the real ledger.
func (l *MemoryLedger) Deposit(addr domain.Address, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to domain.Address, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: zero address", ErrInvalidTransfer)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidTransfer, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, addr domain.Address) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}
