package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid transfer amount")
)

// Transfer 一笔转账
type Transfer struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger 账户余额账本
//
// Transfer 按顺序执行一批转账：每一步先校验并扣减来源账户，再增加目标账户。
// 任意一步失败则整批不生效。
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

// BalanceOf 查询余额
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TotalSupply 所有账户余额之和
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

// Credit 外部资金入账（链上充值或运维充值）
func (l *Ledger) Credit(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceLocked(account)
	b.Add(b, amount)
	l.supply.Add(l.supply, amount)
	return nil
}

// Transfer 原子地执行一批转账
func (l *Ledger) Transfer(ctx context.Context, transfers ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 先在副本上演算，全部通过后再写回
	working := make(map[common.Address]*big.Int)
	current := func(account common.Address) *big.Int {
		if b, ok := working[account]; ok {
			return b
		}
		b := new(big.Int)
		if existing, ok := l.balances[account]; ok {
			b.Set(existing)
		}
		working[account] = b
		return b
	}

	for i, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() < 0 {
			return fmt.Errorf("transfer %d: %w", i, ErrInvalidAmount)
		}
		if t.Amount.Sign() == 0 {
			continue
		}

		from := current(t.From)
		if from.Cmp(t.Amount) < 0 {
			return fmt.Errorf("transfer %d from %s: need %s, have %s: %w",
				i, t.From.Hex(), t.Amount, from, ErrInsufficientBalance)
		}
		from.Sub(from, t.Amount)

		to := current(t.To)
		to.Add(to, t.Amount)
	}

	for account, b := range working {
		if b.Sign() == 0 {
			delete(l.balances, account)
			continue
		}
		l.balances[account] = b
	}

	return nil
}

func (l *Ledger) balanceLocked(account common.Address) *big.Int {
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	return b
}
