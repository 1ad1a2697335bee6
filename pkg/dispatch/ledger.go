package dispatch

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// FeeLedger is the native-token accounting the dispatcher settles bridge fees
// against. Payments are debited from the caller, fees forwarded to each
// bridge's fee account, and the remainder refunded, so the dispatcher's own
// account always returns to zero after a dispatch.
type FeeLedger struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewFeeLedger() *FeeLedger {
	return &FeeLedger{
		balances: make(map[common.Address]*big.Int),
	}
}

// Credit adds amount to the account. Nil or negative amounts are ignored.
func (l *FeeLedger) Credit(account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, amount)
}

func (l *FeeLedger) credit(account common.Address, amount *big.Int) {
	balance, ok := l.balances[account]
	if !ok {
		balance = new(big.Int)
		l.balances[account] = balance
	}
	balance.Add(balance, amount)
}

// Transfer moves amount between accounts, failing on insufficient balance.
func (l *FeeLedger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer amount cannot be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance in %s: need %s", from.Hex(), amount.String())
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

// Balance returns the account balance, zero for unknown accounts.
func (l *FeeLedger) Balance(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[account]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}
