package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Wallet is the singleton state of the multisig engine. The Initiator is fixed
// at creation and need not be an owner.
type Wallet struct {
	Address    common.Address
	Initiator  common.Address
	Owners     *OwnerSet
	Required   uint64
	NextCallID uint64
}

func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Owners = w.Owners.Clone()
	return &c
}

// PendingCall is a queued destination call. ConfirmedBy is only populated by
// read paths; the engine works against the confirmations table directly.
type PendingCall struct {
	ID          uint64
	Destination common.Address
	Value       uint256.Int
	Payload     []byte
	Executed    bool
	ConfirmedBy []common.Address
}
