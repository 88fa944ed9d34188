package db

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"go-bridge-quorum/model"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already finished")

// Store opens transactions. Everything written inside one transaction becomes
// visible atomically on Commit and is discarded on Rollback.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the set of point reads and writes the engines need, keyed by the
// natural key of each entity.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// BridgeState returns model.ErrNotInitialized before the first SaveBridgeState.
	BridgeState(ctx context.Context) (*model.BridgeState, error)
	SaveBridgeState(ctx context.Context, s *model.BridgeState) error
	IsValidator(ctx context.Context, addr common.Address) (bool, error)
	SetValidator(ctx context.Context, addr common.Address, active bool) error
	Validators(ctx context.Context) ([]common.Address, error)
	// Attestation returns nil for an event that has never been attested.
	Attestation(ctx context.Context, id model.EventID) (*model.AttestationRecord, error)
	SaveAttestation(ctx context.Context, rec *model.AttestationRecord) error
	HasAttested(ctx context.Context, id model.EventID, validator common.Address) (bool, error)
	AddVote(ctx context.Context, id model.EventID, validator common.Address) error
	Voters(ctx context.Context, id model.EventID) ([]common.Address, error)

	// Wallet returns model.ErrNotInitialized before the first SaveWallet.
	Wallet(ctx context.Context) (*model.Wallet, error)
	SaveWallet(ctx context.Context, w *model.Wallet) error
	// Call returns nil for an unknown id.
	Call(ctx context.Context, id uint64) (*model.PendingCall, error)
	SaveCall(ctx context.Context, c *model.PendingCall) error
	IsConfirmed(ctx context.Context, id uint64, owner common.Address) (bool, error)
	SetConfirmed(ctx context.Context, id uint64, owner common.Address, confirmed bool) error
	Confirmations(ctx context.Context, id uint64) ([]common.Address, error)

	// AppendRecord assigns rec.Seq.
	AppendRecord(ctx context.Context, rec *model.Record) error
	// Records lists records with Seq > after in order. An empty source matches all.
	Records(ctx context.Context, source string, after uint64, limit int) ([]model.Record, error)
}
