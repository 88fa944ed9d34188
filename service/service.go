package service

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"

	"go-bridge-quorum/db"
	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AssetLedger is the external token the bridge mints and burns. Implementations
// are expected to restrict mint and burn to the bridge and to fail loudly.
//
// A Mint or Burn that calls back into the bridge must pass the ctx it received.
// The engine lock is not reentrant, so a call made with a fresh context blocks
// forever.
type AssetLedger interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, from common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
}

// CallExecutor performs a multisig call against its destination. Reentrant calls
// into the multisig from inside Call must reuse ctx, the engine lock is held for
// the whole of Execute and a fresh context would wait on it forever.
type CallExecutor interface {
	Call(ctx context.Context, from, to common.Address, value *uint256.Int, payload []byte) error
}

// Vault holds the native balance of the multisig.
type Vault interface {
	Balance(ctx context.Context, account common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
}

// Clock returns the current time.
type Clock func() time.Time

// runner gives an engine a totally ordered, all-or-nothing call model: one call
// at a time, each inside a single store transaction. The transaction rides in
// the context, so an external effect that calls back into the same engine joins
// it instead of deadlocking, and sees every flag already written.
type runner struct {
	mu     sync.Mutex
	store  db.Store
	now    Clock
	source string
}

type txKey struct {
	r *runner
}

type txState struct {
	tx      db.Tx
	records []*model.Record
}

func newRunner(store db.Store, clock Clock, source string) *runner {
	if clock == nil {
		clock = time.Now
	}
	return &runner{store: store, now: clock, source: source}
}

func (r *runner) run(ctx context.Context, fn func(ctx context.Context, st *txState) error) error {
	if st, ok := ctx.Value(txKey{r}).(*txState); ok {
		return fn(ctx, st)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st := &txState{tx: tx}
	if err := fn(context.WithValue(ctx, txKey{r}, st), st); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		logger.LogError(err)
		return err
	}
	for _, rec := range st.records {
		logger.LogInfo("%s #%d %s %s", rec.Source, rec.Seq, rec.Kind, rec.Payload)
	}
	return nil
}

func (r *runner) emit(ctx context.Context, st *txState, kind string, at time.Time, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	rec := &model.Record{Source: r.source, Kind: kind, Timestamp: at, Payload: b}
	if err := st.tx.AppendRecord(ctx, rec); err != nil {
		return err
	}
	st.records = append(st.records, rec)
	return nil
}

// Records lists audit records of this engine after the given sequence number.
func (r *runner) Records(ctx context.Context, after uint64, limit int) ([]model.Record, error) {
	var out []model.Record
	err := r.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.Records(ctx, r.source, after, limit)
		return err
	})
	return out, err
}
