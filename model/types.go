package model

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// EventID identifies an external deposit event. It is opaque to the bridge.
type EventID = common.Hash

// DepositEventID derives the identifier watchers attest to for a deposit log
// observed on the source ledger.
func DepositEventID(sourceTxHash common.Hash, logIndex uint64) EventID {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], logIndex)
	return crypto.Keccak256Hash(sourceTxHash.Bytes(), idx[:])
}

// ParseAmount accepts a decimal or 0x-prefixed hex string.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidParameter, "empty amount")
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidParameter, "amount %q: %v", s, err)
	}
	return v, nil
}

// ParseAddress rejects anything that is not a 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(ErrInvalidParameter, "address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseEventID expects a 0x-prefixed 32-byte hex string.
func ParseEventID(s string) (EventID, error) {
	s = strings.TrimSpace(s)
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return EventID{}, errors.Wrapf(ErrInvalidParameter, "event id %q", s)
	}
	return common.BytesToHash(b), nil
}

// WalletAddress derives a deterministic account for a multisig wallet from its
// initiator and founding owners.
func WalletAddress(initiator common.Address, owners []common.Address) common.Address {
	data := make([]byte, 0, common.AddressLength*(len(owners)+1))
	data = append(data, initiator.Bytes()...)
	for _, o := range owners {
		data = append(data, o.Bytes()...)
	}
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}
