package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AttestationRecord is the per-event replay ledger entry. Recipient and Amount
// are bound by the first attestation; later attestations must match them.
type AttestationRecord struct {
	ID                EventID
	Recipient         common.Address
	Amount            uint256.Int
	ConfirmationCount uint64
	Processed         bool
	ProcessedAt       time.Time
	// ConfirmedBy is only populated by read paths.
	ConfirmedBy []common.Address
}

// RateLimitState bounds per-transfer size and the rolling 24h volume.
type RateLimitState struct {
	MaxPerTx    uint256.Int
	MinPerTx    uint256.Int
	DailyCap    uint256.Int
	DailyTotal  uint256.Int
	WindowStart time.Time
}

// FeeState holds the fee percentage and what has been collected so far.
type FeeState struct {
	FeeBps          uint64
	FeeCollector    common.Address
	AccumulatedFees uint256.Int
}

// BridgeState is the singleton configuration and counters of the deposit engine.
type BridgeState struct {
	Admin           common.Address
	Threshold       uint64
	Paused          bool
	Limits          RateLimitState
	Fees            FeeState
	WithdrawalNonce uint64
}

func (s *BridgeState) Clone() *BridgeState {
	c := *s
	return &c
}
