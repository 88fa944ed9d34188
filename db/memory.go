package db

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"go-bridge-quorum/model"
)

// Memory is a Store kept in process memory. A transaction works on a private
// copy of the state and holds the store exclusively until it finishes.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	bridge        *model.BridgeState
	validators    map[common.Address]bool
	attestations  map[model.EventID]model.AttestationRecord
	votes         map[model.EventID]map[common.Address]struct{}
	wallet        *model.Wallet
	calls         map[uint64]model.PendingCall
	confirmations map[uint64]map[common.Address]struct{}
	records       []model.Record
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		validators:    make(map[common.Address]bool),
		attestations:  make(map[model.EventID]model.AttestationRecord),
		votes:         make(map[model.EventID]map[common.Address]struct{}),
		calls:         make(map[uint64]model.PendingCall),
		confirmations: make(map[uint64]map[common.Address]struct{}),
	}}
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	return &memTx{m: m, st: m.state.clone()}, nil
}

func (s *memState) clone() *memState {
	c := &memState{
		validators:    make(map[common.Address]bool, len(s.validators)),
		attestations:  make(map[model.EventID]model.AttestationRecord, len(s.attestations)),
		votes:         make(map[model.EventID]map[common.Address]struct{}, len(s.votes)),
		calls:         make(map[uint64]model.PendingCall, len(s.calls)),
		confirmations: make(map[uint64]map[common.Address]struct{}, len(s.confirmations)),
		// appends inside the transaction must not write into the shared backing array
		records: s.records[:len(s.records):len(s.records)],
	}
	if s.bridge != nil {
		c.bridge = s.bridge.Clone()
	}
	if s.wallet != nil {
		c.wallet = s.wallet.Clone()
	}
	for k, v := range s.validators {
		c.validators[k] = v
	}
	for k, v := range s.attestations {
		c.attestations[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = cloneSet(v)
	}
	for k, v := range s.calls {
		c.calls[k] = v
	}
	for k, v := range s.confirmations {
		c.confirmations[k] = cloneSet(v)
	}
	return c
}

func cloneSet(s map[common.Address]struct{}) map[common.Address]struct{} {
	c := make(map[common.Address]struct{}, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

func sortedKeys(s map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

type memTx struct {
	m    *Memory
	st   *memState
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.m.state = t.st
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) BridgeState(ctx context.Context) (*model.BridgeState, error) {
	if t.st.bridge == nil {
		return nil, model.ErrNotInitialized
	}
	return t.st.bridge.Clone(), nil
}

func (t *memTx) SaveBridgeState(ctx context.Context, s *model.BridgeState) error {
	t.st.bridge = s.Clone()
	return nil
}

func (t *memTx) IsValidator(ctx context.Context, addr common.Address) (bool, error) {
	return t.st.validators[addr], nil
}

func (t *memTx) SetValidator(ctx context.Context, addr common.Address, active bool) error {
	if active {
		t.st.validators[addr] = true
	} else {
		delete(t.st.validators, addr)
	}
	return nil
}

func (t *memTx) Validators(ctx context.Context) ([]common.Address, error) {
	set := make(map[common.Address]struct{}, len(t.st.validators))
	for k := range t.st.validators {
		set[k] = struct{}{}
	}
	return sortedKeys(set), nil
}

func (t *memTx) Attestation(ctx context.Context, id model.EventID) (*model.AttestationRecord, error) {
	rec, ok := t.st.attestations[id]
	if !ok {
		return nil, nil
	}
	rec.ConfirmedBy = sortedKeys(t.st.votes[id])
	return &rec, nil
}

func (t *memTx) SaveAttestation(ctx context.Context, rec *model.AttestationRecord) error {
	stored := *rec
	stored.ConfirmedBy = nil
	t.st.attestations[rec.ID] = stored
	return nil
}

func (t *memTx) HasAttested(ctx context.Context, id model.EventID, validator common.Address) (bool, error) {
	_, ok := t.st.votes[id][validator]
	return ok, nil
}

func (t *memTx) AddVote(ctx context.Context, id model.EventID, validator common.Address) error {
	set, ok := t.st.votes[id]
	if !ok {
		set = make(map[common.Address]struct{})
		t.st.votes[id] = set
	}
	set[validator] = struct{}{}
	return nil
}

func (t *memTx) Voters(ctx context.Context, id model.EventID) ([]common.Address, error) {
	return sortedKeys(t.st.votes[id]), nil
}

func (t *memTx) Wallet(ctx context.Context) (*model.Wallet, error) {
	if t.st.wallet == nil {
		return nil, model.ErrNotInitialized
	}
	return t.st.wallet.Clone(), nil
}

func (t *memTx) SaveWallet(ctx context.Context, w *model.Wallet) error {
	t.st.wallet = w.Clone()
	return nil
}

func (t *memTx) Call(ctx context.Context, id uint64) (*model.PendingCall, error) {
	c, ok := t.st.calls[id]
	if !ok {
		return nil, nil
	}
	c.ConfirmedBy = sortedKeys(t.st.confirmations[id])
	return &c, nil
}

func (t *memTx) SaveCall(ctx context.Context, c *model.PendingCall) error {
	stored := *c
	stored.ConfirmedBy = nil
	t.st.calls[c.ID] = stored
	return nil
}

func (t *memTx) IsConfirmed(ctx context.Context, id uint64, owner common.Address) (bool, error) {
	_, ok := t.st.confirmations[id][owner]
	return ok, nil
}

func (t *memTx) SetConfirmed(ctx context.Context, id uint64, owner common.Address, confirmed bool) error {
	set, ok := t.st.confirmations[id]
	if !ok {
		set = make(map[common.Address]struct{})
		t.st.confirmations[id] = set
	}
	if confirmed {
		set[owner] = struct{}{}
	} else {
		delete(set, owner)
	}
	return nil
}

func (t *memTx) Confirmations(ctx context.Context, id uint64) ([]common.Address, error) {
	return sortedKeys(t.st.confirmations[id]), nil
}

func (t *memTx) AppendRecord(ctx context.Context, rec *model.Record) error {
	rec.Seq = uint64(len(t.st.records)) + 1
	stored := *rec
	stored.Payload = append([]byte(nil), rec.Payload...)
	t.st.records = append(t.st.records, stored)
	return nil
}

func (t *memTx) Records(ctx context.Context, source string, after uint64, limit int) ([]model.Record, error) {
	if after >= uint64(len(t.st.records)) {
		return nil, nil
	}
	var out []model.Record
	for i := int(after); i < len(t.st.records); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec := t.st.records[i]
		if source != "" && rec.Source != source {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
