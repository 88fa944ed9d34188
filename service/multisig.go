package service

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/db"
	"go-bridge-quorum/logger"
	"go-bridge-quorum/model"
)

// WalletConfig is the initial configuration of the multisig engine.
type WalletConfig struct {
	// Address is the account whose native balance the wallet spends.
	Address   common.Address
	Initiator common.Address
	Owners    []common.Address
	Required  uint64
}

// Multisig queues destination calls, collects owner confirmations and runs a
// call once enough current owners confirmed it. A call whose destination fails
// stays queued with its confirmations and can be executed again.
type Multisig struct {
	*runner
	executor CallExecutor
	vault    Vault
}

func NewMultisig(store db.Store, executor CallExecutor, vault Vault, clock Clock) *Multisig {
	return &Multisig{
		runner:   newRunner(store, clock, model.SourceMultisig),
		executor: executor,
		vault:    vault,
	}
}

func (m *Multisig) Initialize(ctx context.Context, cfg WalletConfig) error {
	return m.run(ctx, func(ctx context.Context, st *txState) error {
		_, err := st.tx.Wallet(ctx)
		if err == nil {
			return model.ErrAlreadyInitialized
		}
		if !errors.Is(err, model.ErrNotInitialized) {
			return err
		}
		if cfg.Address == (common.Address{}) || cfg.Initiator == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "wallet address and initiator are required")
		}
		if len(cfg.Owners) > model.MaxOwners {
			return errors.Wrapf(model.ErrOwnerCap, "%d owners", len(cfg.Owners))
		}
		owners := model.NewOwnerSet()
		for _, o := range cfg.Owners {
			if o == (common.Address{}) {
				return errors.Wrap(model.ErrZeroAddress, "owner")
			}
			if !owners.Add(o) {
				return errors.Wrap(model.ErrAlreadyOwner, o.Hex())
			}
		}
		if cfg.Required == 0 || cfg.Required > uint64(owners.Len()) {
			return errors.Wrapf(model.ErrInvalidThreshold, "required %d of %d owners", cfg.Required, owners.Len())
		}
		return st.tx.SaveWallet(ctx, &model.Wallet{
			Address:   cfg.Address,
			Initiator: cfg.Initiator,
			Owners:    owners,
			Required:  cfg.Required,
		})
	})
}

/*
This method queues a call and confirms it on behalf of the submitting owner, which
executes it right away when one confirmation is enough
*/
func (m *Multisig) Submit(ctx context.Context, destination common.Address, value *uint256.Int, payload []byte, caller common.Address) (uint64, error) {
	var id uint64
	err := m.run(ctx, func(ctx context.Context, st *txState) error {
		w, err := st.tx.Wallet(ctx)
		if err != nil {
			return err
		}
		if !w.Owners.Contains(caller) {
			return errors.Wrap(model.ErrNotOwner, caller.Hex())
		}
		if destination == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "destination")
		}
		call := &model.PendingCall{
			ID:          w.NextCallID,
			Destination: destination,
			Payload:     append([]byte(nil), payload...),
		}
		if value != nil {
			call.Value.Set(value)
		}
		id = call.ID
		w.NextCallID++
		if err := st.tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if err := st.tx.SaveCall(ctx, call); err != nil {
			return err
		}
		err = m.emit(ctx, st, model.KindCallSubmitted, m.now(), model.CallPayload{
			CallID:      id,
			Owner:       caller.Hex(),
			Destination: destination.Hex(),
			Value:       call.Value.Dec(),
			Payload:     hexutil.Encode(call.Payload),
		})
		if err != nil {
			return err
		}
		return m.confirm(ctx, st, id, caller)
	})
	return id, err
}

// Confirm adds the caller's confirmation and executes the call if that makes quorum.
// A failed execution does not fail the confirmation.
func (m *Multisig) Confirm(ctx context.Context, id uint64, caller common.Address) error {
	return m.run(ctx, func(ctx context.Context, st *txState) error {
		return m.confirm(ctx, st, id, caller)
	})
}

func (m *Multisig) confirm(ctx context.Context, st *txState, id uint64, caller common.Address) error {
	w, err := st.tx.Wallet(ctx)
	if err != nil {
		return err
	}
	call, err := st.tx.Call(ctx, id)
	if err != nil {
		return err
	}
	if call == nil {
		return errors.Wrapf(model.ErrNoSuchCall, "call %d", id)
	}
	if call.Executed {
		return errors.Wrapf(model.ErrAlreadyExecuted, "call %d", id)
	}
	confirmed, err := st.tx.IsConfirmed(ctx, id, caller)
	if err != nil {
		return err
	}
	if confirmed {
		return errors.Wrapf(model.ErrAlreadyConfirmed, "call %d owner %s", id, caller.Hex())
	}
	if !w.Owners.Contains(caller) {
		return errors.Wrap(model.ErrNotOwner, caller.Hex())
	}
	if err := st.tx.SetConfirmed(ctx, id, caller, true); err != nil {
		return err
	}
	err = m.emit(ctx, st, model.KindCallConfirmed, m.now(), model.CallPayload{CallID: id, Owner: caller.Hex()})
	if err != nil {
		return err
	}
	callErr, err := m.execute(ctx, st, w, call, caller)
	if callErr != nil {
		logger.LogInfo("call %d not executed: %v", id, callErr)
	}
	return err
}

/*
This method runs a call that has quorum. It does nothing when the call already ran or
lacks confirmations. When the destination fails the call stays pending with its
confirmations and the returned error wraps model.ErrExternalCallFailed
*/
func (m *Multisig) Execute(ctx context.Context, id uint64, caller common.Address) error {
	var callErr error
	err := m.run(ctx, func(ctx context.Context, st *txState) error {
		w, err := st.tx.Wallet(ctx)
		if err != nil {
			return err
		}
		if !w.Owners.Contains(caller) {
			return errors.Wrap(model.ErrNotOwner, caller.Hex())
		}
		call, err := st.tx.Call(ctx, id)
		if err != nil {
			return err
		}
		if call == nil {
			return errors.Wrapf(model.ErrNoSuchCall, "call %d", id)
		}
		callErr, err = m.execute(ctx, st, w, call, caller)
		return err
	})
	if err != nil {
		return err
	}
	return callErr
}

// execute returns the destination failure separately from storage errors: only
// the latter abort the surrounding transaction.
func (m *Multisig) execute(ctx context.Context, st *txState, w *model.Wallet, call *model.PendingCall, caller common.Address) (callErr, err error) {
	if call.Executed {
		return nil, nil
	}
	ok, err := m.hasQuorum(ctx, st, w, call.ID)
	if err != nil || !ok {
		return nil, err
	}

	// flip first so a reentrant execute or confirm sees the call as done
	call.Executed = true
	if err := st.tx.SaveCall(ctx, call); err != nil {
		return nil, err
	}
	callErr = m.executor.Call(ctx, w.Address, call.Destination, &call.Value, call.Payload)
	if callErr == nil {
		return nil, m.emit(ctx, st, model.KindCallExecuted, m.now(), model.CallPayload{CallID: call.ID, Owner: caller.Hex()})
	}

	call.Executed = false
	if err := st.tx.SaveCall(ctx, call); err != nil {
		return nil, err
	}
	err = m.emit(ctx, st, model.KindCallExecutionFailed, m.now(), model.CallPayload{
		CallID: call.ID,
		Owner:  caller.Hex(),
		Error:  callErr.Error(),
	})
	if err != nil {
		return nil, err
	}
	return errors.Wrapf(model.ErrExternalCallFailed, "call %d: %v", call.ID, callErr), nil
}

// hasQuorum counts confirmations from addresses that are still owners.
func (m *Multisig) hasQuorum(ctx context.Context, st *txState, w *model.Wallet, id uint64) (bool, error) {
	confirmations, err := st.tx.Confirmations(ctx, id)
	if err != nil {
		return false, err
	}
	var n uint64
	for _, c := range confirmations {
		if w.Owners.Contains(c) {
			n++
		}
	}
	return n >= w.Required, nil
}

func (m *Multisig) Revoke(ctx context.Context, id uint64, caller common.Address) error {
	return m.run(ctx, func(ctx context.Context, st *txState) error {
		w, err := st.tx.Wallet(ctx)
		if err != nil {
			return err
		}
		if !w.Owners.Contains(caller) {
			return errors.Wrap(model.ErrNotOwner, caller.Hex())
		}
		call, err := st.tx.Call(ctx, id)
		if err != nil {
			return err
		}
		if call == nil {
			return errors.Wrapf(model.ErrNoSuchCall, "call %d", id)
		}
		if call.Executed {
			return errors.Wrapf(model.ErrAlreadyExecuted, "call %d", id)
		}
		confirmed, err := st.tx.IsConfirmed(ctx, id, caller)
		if err != nil {
			return err
		}
		if !confirmed {
			return errors.Wrapf(model.ErrNotConfirmed, "call %d owner %s", id, caller.Hex())
		}
		if err := st.tx.SetConfirmed(ctx, id, caller, false); err != nil {
			return err
		}
		return m.emit(ctx, st, model.KindCallRevoked, m.now(), model.CallPayload{CallID: id, Owner: caller.Hex()})
	})
}

// initiator runs fn for the initiator and saves the wallet afterwards.
func (m *Multisig) initiator(ctx context.Context, caller common.Address, fn func(ctx context.Context, st *txState, w *model.Wallet) error) error {
	return m.run(ctx, func(ctx context.Context, st *txState) error {
		w, err := st.tx.Wallet(ctx)
		if err != nil {
			return err
		}
		if caller != w.Initiator {
			return errors.Wrap(model.ErrNotInitiator, caller.Hex())
		}
		if err := fn(ctx, st, w); err != nil {
			return err
		}
		return st.tx.SaveWallet(ctx, w)
	})
}

func (m *Multisig) AddOwner(ctx context.Context, owner, caller common.Address) error {
	return m.initiator(ctx, caller, func(ctx context.Context, st *txState, w *model.Wallet) error {
		if owner == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "owner")
		}
		if w.Owners.Contains(owner) {
			return errors.Wrap(model.ErrAlreadyOwner, owner.Hex())
		}
		if w.Owners.Len() >= model.MaxOwners {
			return errors.Wrapf(model.ErrOwnerCap, "%d owners", w.Owners.Len())
		}
		w.Owners.Add(owner)
		return m.emit(ctx, st, model.KindOwnerAdded, m.now(), model.AddressPayload{Address: owner.Hex(), By: caller.Hex()})
	})
}

// RemoveOwner lowers the requirement to the new owner count first when the
// removal would otherwise leave it unreachable.
func (m *Multisig) RemoveOwner(ctx context.Context, owner, caller common.Address) error {
	return m.initiator(ctx, caller, func(ctx context.Context, st *txState, w *model.Wallet) error {
		if !w.Owners.Contains(owner) {
			return errors.Wrapf(model.ErrNotFound, "owner %s", owner.Hex())
		}
		if w.Owners.Len() == 1 {
			return model.ErrLastOwner
		}
		w.Owners.Remove(owner)
		now := m.now()
		if remaining := uint64(w.Owners.Len()); w.Required > remaining {
			err := m.emit(ctx, st, model.KindRequirementChanged, now, model.ChangePayload{
				Field: "required",
				Old:   strconv.FormatUint(w.Required, 10),
				New:   strconv.FormatUint(remaining, 10),
				By:    caller.Hex(),
			})
			if err != nil {
				return err
			}
			w.Required = remaining
		}
		return m.emit(ctx, st, model.KindOwnerRemoved, now, model.AddressPayload{Address: owner.Hex(), By: caller.Hex()})
	})
}

func (m *Multisig) ChangeRequirement(ctx context.Context, required uint64, caller common.Address) error {
	return m.initiator(ctx, caller, func(ctx context.Context, st *txState, w *model.Wallet) error {
		if required == 0 || required > uint64(w.Owners.Len()) {
			return errors.Wrapf(model.ErrInvalidThreshold, "required %d of %d owners", required, w.Owners.Len())
		}
		old := w.Required
		w.Required = required
		return m.emit(ctx, st, model.KindRequirementChanged, m.now(), model.ChangePayload{
			Field: "required",
			Old:   strconv.FormatUint(old, 10),
			New:   strconv.FormatUint(required, 10),
			By:    caller.Hex(),
		})
	})
}

/*
This method lets the initiator move funds out of the wallet without any owner
confirmation. The quorum path is not involved
*/
func (m *Multisig) EmergencyWithdraw(ctx context.Context, amount *uint256.Int, recipient, caller common.Address) error {
	return m.initiator(ctx, caller, func(ctx context.Context, st *txState, w *model.Wallet) error {
		if amount == nil || amount.IsZero() {
			return model.ErrZeroAmount
		}
		if recipient == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "recipient")
		}
		balance, err := m.vault.Balance(ctx, w.Address)
		if err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "balance: %v", err)
		}
		if balance.Lt(amount) {
			return errors.Wrapf(model.ErrInsufficientFunds, "wallet holds %s, withdrawing %s", balance.Dec(), amount.Dec())
		}
		if err := m.vault.Transfer(ctx, w.Address, recipient, amount); err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "transfer: %v", err)
		}
		return m.emit(ctx, st, model.KindEmergencyWithdrawal, m.now(), model.EmergencyPayload{
			Recipient: recipient.Hex(),
			Amount:    amount.Dec(),
			By:        caller.Hex(),
		})
	})
}

func (m *Multisig) Wallet(ctx context.Context) (*model.Wallet, error) {
	var out *model.Wallet
	err := m.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.Wallet(ctx)
		return err
	})
	return out, err
}

// Call returns the call with its confirmations.
func (m *Multisig) Call(ctx context.Context, id uint64) (*model.PendingCall, error) {
	var out *model.PendingCall
	err := m.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.Call(ctx, id)
		if err == nil && out == nil {
			err = errors.Wrapf(model.ErrNoSuchCall, "call %d", id)
		}
		return err
	})
	return out, err
}

func (m *Multisig) IsConfirmed(ctx context.Context, id uint64, owner common.Address) (bool, error) {
	var out bool
	err := m.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.IsConfirmed(ctx, id, owner)
		return err
	})
	return out, err
}

func (m *Multisig) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	w, err := m.Wallet(ctx)
	if err != nil {
		return false, err
	}
	return w.Owners.Contains(addr), nil
}
