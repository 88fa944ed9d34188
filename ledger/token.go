package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/model"
)

// Token is an in-memory fungible asset ledger. The bridge is its only minter
// and burner; it stands in for the real token when running standalone.
type Token struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
	supply   uint256.Int
}

func NewToken() *Token {
	return &Token{balances: make(map[common.Address]*uint256.Int)}
}

func (t *Token) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return errors.Wrap(model.ErrZeroAddress, "mint")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(&t.supply, amount)
	if overflow {
		return errors.Wrap(model.ErrOverflow, "total supply")
	}
	t.supply.Set(supply)
	t.balance(to).Add(t.balance(to), amount)
	return nil
}

func (t *Token) Burn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(from)
	if bal.Lt(amount) {
		return errors.Wrapf(model.ErrInsufficientFunds, "burn %s from %s holding %s", amount.Dec(), from.Hex(), bal.Dec())
	}
	bal.Sub(bal, amount)
	t.supply.Sub(&t.supply, amount)
	return nil
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance(account).Clone(), nil
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply.Clone()
}

func (t *Token) balance(a common.Address) *uint256.Int {
	b, ok := t.balances[a]
	if !ok {
		b = new(uint256.Int)
		t.balances[a] = b
	}
	return b
}
