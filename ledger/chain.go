package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/model"
)

// Contract is code deployed at an address that a multisig call can reach.
// Invoke runs while the calling engine holds its lock, so any call it makes back
// into that engine must pass ctx through unchanged.
type Contract interface {
	Invoke(ctx context.Context, from common.Address, value *uint256.Int, payload []byte) error
}

// ContractFunc adapts a function to Contract.
type ContractFunc func(ctx context.Context, from common.Address, value *uint256.Int, payload []byte) error

func (f ContractFunc) Invoke(ctx context.Context, from common.Address, value *uint256.Int, payload []byte) error {
	return f(ctx, from, value, payload)
}

// Chain holds native balances and routes calls to deployed contracts. A call
// to an address without a contract is a plain value transfer.
type Chain struct {
	mu        sync.Mutex
	balances  map[common.Address]*uint256.Int
	contracts map[common.Address]Contract
}

func NewChain() *Chain {
	return &Chain{
		balances:  make(map[common.Address]*uint256.Int),
		contracts: make(map[common.Address]Contract),
	}
}

func (c *Chain) Deploy(at common.Address, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[at] = contract
}

// Credit adds native value to an account, e.g. funding the multisig.
func (c *Chain) Credit(account common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.balance(account)
	b.Add(b, amount)
}

func (c *Chain) Balance(ctx context.Context, account common.Address) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance(account).Clone(), nil
}

func (c *Chain) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.move(from, to, amount)
}

// Call moves value to the destination and invokes its contract, if any. The
// value transfer is undone when the contract fails. The lock is not held
// while the contract runs, so it may call back into its caller.
func (c *Chain) Call(ctx context.Context, from, to common.Address, value *uint256.Int, payload []byte) error {
	c.mu.Lock()
	if err := c.move(from, to, value); err != nil {
		c.mu.Unlock()
		return err
	}
	contract := c.contracts[to]
	c.mu.Unlock()

	if contract == nil {
		return nil
	}
	if err := contract.Invoke(ctx, from, value, payload); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if rerr := c.move(to, from, value); rerr != nil {
			return errors.Wrapf(rerr, "refund after %v", err)
		}
		return err
	}
	return nil
}

func (c *Chain) move(from, to common.Address, amount *uint256.Int) error {
	src := c.balance(from)
	if src.Lt(amount) {
		return errors.Wrapf(model.ErrInsufficientFunds, "%s holds %s, needs %s", from.Hex(), src.Dec(), amount.Dec())
	}
	src.Sub(src, amount)
	dst := c.balance(to)
	dst.Add(dst, amount)
	return nil
}

func (c *Chain) balance(a common.Address) *uint256.Int {
	b, ok := c.balances[a]
	if !ok {
		b = new(uint256.Int)
		c.balances[a] = b
	}
	return b
}
