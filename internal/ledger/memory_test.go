package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain"
)

func TestMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds between accounts", func(t *testing.T) {
		l := NewMemoryLedger(map[domain.Address]int64{"0xa": 100})

		require.NoError(t, l.Transfer(ctx, "0xa", "0xb", 40))

		from, err := l.BalanceOf(ctx, "0xa")
		require.NoError(t, err)
		assert.Equal(t, int64(60), from)

		to, err := l.BalanceOf(ctx, "0xb")
		require.NoError(t, err)
		assert.Equal(t, int64(40), to)
	})

	t.Run("rejects transfers the source cannot cover", func(t *testing.T) {
		l := NewMemoryLedger(map[domain.Address]int64{"0xa": 10})

		err := l.Transfer(ctx, "0xa", "0xb", 11)
		require.ErrorIs(t, err, ErrInsufficientFunds)

		from, err := l.BalanceOf(ctx, "0xa")
		require.NoError(t, err)
		assert.Equal(t, int64(10), from, "failed transfer leaves balances untouched")
	})

	t.Run("rejects malformed transfers", func(t *testing.T) {
		l := NewMemoryLedger(nil)
		l.Deposit("0xa", 5)

		assert.ErrorIs(t, l.Transfer(ctx, "", "0xb", 1), ErrInvalidTransfer)
		assert.ErrorIs(t, l.Transfer(ctx, "0xa", "", 1), ErrInvalidTransfer)
		assert.ErrorIs(t, l.Transfer(ctx, "0xa", "0xb", 0), ErrInvalidTransfer)
		assert.ErrorIs(t, l.Transfer(ctx, "0xa", "0xb", -3), ErrInvalidTransfer)
	})

	t.Run("deposit credits an account", func(t *testing.T) {
		l := NewMemoryLedger(nil)
		l.Deposit("0xc", 25)

		bal, err := l.BalanceOf(ctx, "0xc")
		require.NoError(t, err)
		assert.Equal(t, int64(25), bal)
	})
}
