package service

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/db"
	"go-bridge-quorum/model"
	"go-bridge-quorum/policy"
)

const (
	StatusSuccess = "success"
	StatusPending = "pending"
)

// BridgeConfig is the initial configuration of the deposit engine.
type BridgeConfig struct {
	Admin        common.Address
	Threshold    uint64
	Validators   []common.Address
	MaxPerTx     *uint256.Int
	MinPerTx     *uint256.Int
	DailyCap     *uint256.Int
	FeeBps       uint64
	FeeCollector common.Address
}

// Bridge is the deposit confirmation engine. Validators attest to deposits
// observed on the other ledger; the attestation that reaches the threshold
// mints the net amount exactly once. It also burns outgoing withdrawals.
type Bridge struct {
	*runner
	ledger AssetLedger
}

func NewBridge(store db.Store, ledger AssetLedger, clock Clock) *Bridge {
	return &Bridge{
		runner: newRunner(store, clock, model.SourceBridge),
		ledger: ledger,
	}
}

/*
This method writes the initial bridge state and validator set. It fails if the bridge is already initialized
*/
func (b *Bridge) Initialize(ctx context.Context, cfg BridgeConfig) error {
	return b.run(ctx, func(ctx context.Context, st *txState) error {
		_, err := st.tx.BridgeState(ctx)
		if err == nil {
			return model.ErrAlreadyInitialized
		}
		if !errors.Is(err, model.ErrNotInitialized) {
			return err
		}
		if cfg.Admin == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "admin")
		}
		if cfg.Threshold == 0 {
			return errors.Wrap(model.ErrInvalidThreshold, "threshold must be at least 1")
		}
		if cfg.MaxPerTx == nil || cfg.DailyCap == nil {
			return errors.Wrap(model.ErrInvalidParameter, "max per tx and daily cap are required")
		}

		state := &model.BridgeState{Admin: cfg.Admin, Threshold: cfg.Threshold}
		state.Limits.WindowStart = b.now()
		limiter := policy.NewRateLimiter(&state.Limits)
		if _, err := limiter.SetMax(cfg.MaxPerTx); err != nil {
			return err
		}
		if cfg.MinPerTx != nil {
			if _, err := limiter.SetMin(cfg.MinPerTx); err != nil {
				return err
			}
		}
		if _, err := limiter.SetDailyCap(cfg.DailyCap); err != nil {
			return err
		}
		fees := policy.NewFees(&state.Fees)
		if _, err := fees.SetFeeBps(cfg.FeeBps); err != nil {
			return err
		}
		if _, err := fees.SetFeeCollector(cfg.FeeCollector); err != nil {
			return err
		}
		if err := st.tx.SaveBridgeState(ctx, state); err != nil {
			return err
		}
		for _, v := range cfg.Validators {
			if v == (common.Address{}) {
				return errors.Wrap(model.ErrZeroAddress, "validator")
			}
			if err := st.tx.SetValidator(ctx, v, true); err != nil {
				return err
			}
		}
		return nil
	})
}

/*
This method records one validator's attestation for an external deposit event.
The attestation that brings the count to the threshold checks limits, takes the fee,
marks the event processed and mints the net amount. Any failure reverts the whole call,
including the vote.
*/
func (b *Bridge) Attest(ctx context.Context, id model.EventID, recipient common.Address, amount *uint256.Int, validator common.Address) (*model.AttestationRecord, error) {
	var out *model.AttestationRecord
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		state, err := st.tx.BridgeState(ctx)
		if err != nil {
			return err
		}
		if state.Paused {
			return model.ErrPaused
		}
		ok, err := st.tx.IsValidator(ctx, validator)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrap(model.ErrNotValidator, validator.Hex())
		}
		rec, err := st.tx.Attestation(ctx, id)
		if err != nil {
			return err
		}
		if rec != nil && rec.Processed {
			return errors.Wrap(model.ErrAlreadyProcessed, id.Hex())
		}
		attested, err := st.tx.HasAttested(ctx, id, validator)
		if err != nil {
			return err
		}
		if attested {
			return errors.Wrapf(model.ErrAlreadyAttested, "event %s validator %s", id.Hex(), validator.Hex())
		}

		if rec == nil {
			if recipient == (common.Address{}) {
				return errors.Wrap(model.ErrZeroAddress, "recipient")
			}
			if amount == nil || amount.IsZero() {
				return model.ErrZeroAmount
			}
			rec = &model.AttestationRecord{ID: id, Recipient: recipient}
			rec.Amount.Set(amount)
		} else if rec.Recipient != recipient || amount == nil || !rec.Amount.Eq(amount) {
			return errors.Wrapf(model.ErrAttestationMismatch, "event %s", id.Hex())
		}
		rec.ConfirmationCount++
		rec.ConfirmedBy = append(rec.ConfirmedBy, validator)
		now := b.now()

		if rec.ConfirmationCount < state.Threshold {
			if err := st.tx.SaveAttestation(ctx, rec); err != nil {
				return err
			}
			if err := st.tx.AddVote(ctx, id, validator); err != nil {
				return err
			}
			out = rec
			return b.emit(ctx, st, model.KindAttestationRecorded, now, model.AttestationRecordedPayload{
				ID:                id.Hex(),
				Validator:         validator.Hex(),
				Recipient:         recipient.Hex(),
				Amount:            rec.Amount.Dec(),
				ConfirmationCount: rec.ConfirmationCount,
				Threshold:         state.Threshold,
			})
		}

		limiter := policy.NewRateLimiter(&state.Limits)
		limiter.ResetWindowIfExpired(now)
		if err := limiter.CheckAndReserve(&rec.Amount); err != nil {
			return errors.Wrapf(err, "event %s", id.Hex())
		}
		fees := policy.NewFees(&state.Fees)
		fee, net, err := fees.ComputeFee(&rec.Amount)
		if err != nil {
			return err
		}
		if err := fees.Accumulate(fee); err != nil {
			return err
		}
		rec.Processed = true
		rec.ProcessedAt = now

		// everything is written before the mint so a reentrant attest sees Processed
		if err := st.tx.SaveBridgeState(ctx, state); err != nil {
			return err
		}
		if err := st.tx.SaveAttestation(ctx, rec); err != nil {
			return err
		}
		if err := st.tx.AddVote(ctx, id, validator); err != nil {
			return err
		}
		if err := b.ledger.Mint(ctx, rec.Recipient, net); err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "mint %s to %s: %v", net.Dec(), rec.Recipient.Hex(), err)
		}
		if !fee.IsZero() {
			err := b.emit(ctx, st, model.KindFeeCollected, now, model.FeePayload{
				Amount: fee.Dec(),
				Total:  state.Fees.AccumulatedFees.Dec(),
			})
			if err != nil {
				return err
			}
		}
		out = rec
		return b.emit(ctx, st, model.KindAttestationProcessed, now, model.TransferPayload{
			ID:                id.Hex(),
			Recipient:         rec.Recipient.Hex(),
			NetAmount:         net.Dec(),
			Fee:               fee.Dec(),
			Timestamp:         now.Unix(),
			ConfirmationCount: rec.ConfirmationCount,
			Status:            StatusSuccess,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

/*
This method burns amount from the caller and publishes a pending withdrawal for the
watchers of the other ledger. The minimum transfer size does not apply here.
*/
func (b *Bridge) Withdraw(ctx context.Context, destination common.Address, amount *uint256.Int, caller common.Address) (uint64, error) {
	var nonce uint64
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		state, err := st.tx.BridgeState(ctx)
		if err != nil {
			return err
		}
		if state.Paused {
			return model.ErrPaused
		}
		if destination == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "destination")
		}
		if amount == nil || amount.IsZero() {
			return model.ErrZeroAmount
		}
		now := b.now()

		limiter := policy.NewRateLimiter(&state.Limits)
		limiter.ResetWindowIfExpired(now)
		if err := limiter.CheckAndReserveWithdrawal(amount); err != nil {
			return err
		}
		fees := policy.NewFees(&state.Fees)
		fee, net, err := fees.ComputeFee(amount)
		if err != nil {
			return err
		}
		if err := fees.Accumulate(fee); err != nil {
			return err
		}

		balance, err := b.ledger.BalanceOf(ctx, caller)
		if err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "balance of %s: %v", caller.Hex(), err)
		}
		if balance.Lt(amount) {
			return errors.Wrapf(model.ErrInsufficientFunds, "%s holds %s, withdrawing %s", caller.Hex(), balance.Dec(), amount.Dec())
		}

		nonce = state.WithdrawalNonce
		state.WithdrawalNonce++
		if err := st.tx.SaveBridgeState(ctx, state); err != nil {
			return err
		}
		if err := b.ledger.Burn(ctx, caller, amount); err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "burn %s from %s: %v", amount.Dec(), caller.Hex(), err)
		}
		if !fee.IsZero() {
			err := b.emit(ctx, st, model.KindFeeCollected, now, model.FeePayload{
				Amount: fee.Dec(),
				Total:  state.Fees.AccumulatedFees.Dec(),
			})
			if err != nil {
				return err
			}
		}
		return b.emit(ctx, st, model.KindWithdrawalPending, now, model.WithdrawalPayload{
			Nonce:       nonce,
			Caller:      caller.Hex(),
			Destination: destination.Hex(),
			NetAmount:   net.Dec(),
			Fee:         fee.Dec(),
			Timestamp:   now.Unix(),
			Status:      StatusPending,
		})
	})
	return nonce, err
}

// WithdrawAccumulatedFees mints every collected fee to recipient. Only the admin
// or the fee collector may call it.
func (b *Bridge) WithdrawAccumulatedFees(ctx context.Context, recipient, caller common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		state, err := st.tx.BridgeState(ctx)
		if err != nil {
			return err
		}
		if caller != state.Admin && caller != state.Fees.FeeCollector {
			return errors.Wrap(model.ErrNotAdmin, caller.Hex())
		}
		if recipient == (common.Address{}) {
			return errors.Wrap(model.ErrZeroAddress, "recipient")
		}
		amount, err = policy.NewFees(&state.Fees).Drain()
		if err != nil {
			return err
		}
		if err := st.tx.SaveBridgeState(ctx, state); err != nil {
			return err
		}
		if err := b.ledger.Mint(ctx, recipient, amount); err != nil {
			return errors.Wrapf(model.ErrExternalCallFailed, "mint fees to %s: %v", recipient.Hex(), err)
		}
		return b.emit(ctx, st, model.KindFeesWithdrawn, b.now(), model.FeePayload{
			Amount:    amount.Dec(),
			Total:     "0",
			Recipient: recipient.Hex(),
		})
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// admin runs fn for the bridge admin, then saves the state and emits the record fn returns.
func (b *Bridge) admin(ctx context.Context, caller common.Address, fn func(ctx context.Context, st *txState, state *model.BridgeState) (string, interface{}, error)) error {
	return b.run(ctx, func(ctx context.Context, st *txState) error {
		state, err := st.tx.BridgeState(ctx)
		if err != nil {
			return err
		}
		if caller != state.Admin {
			return errors.Wrap(model.ErrNotAdmin, caller.Hex())
		}
		kind, payload, err := fn(ctx, st, state)
		if err != nil {
			return err
		}
		if err := st.tx.SaveBridgeState(ctx, state); err != nil {
			return err
		}
		return b.emit(ctx, st, kind, b.now(), payload)
	})
}

func (b *Bridge) AddValidator(ctx context.Context, validator, caller common.Address) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, _ *model.BridgeState) (string, interface{}, error) {
		if validator == (common.Address{}) {
			return "", nil, errors.Wrap(model.ErrZeroAddress, "validator")
		}
		ok, err := st.tx.IsValidator(ctx, validator)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return "", nil, errors.Wrap(model.ErrAlreadyValidator, validator.Hex())
		}
		if err := st.tx.SetValidator(ctx, validator, true); err != nil {
			return "", nil, err
		}
		return model.KindValidatorAdded, model.AddressPayload{Address: validator.Hex(), By: caller.Hex()}, nil
	})
}

func (b *Bridge) RemoveValidator(ctx context.Context, validator, caller common.Address) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, _ *model.BridgeState) (string, interface{}, error) {
		ok, err := st.tx.IsValidator(ctx, validator)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, errors.Wrapf(model.ErrNotFound, "validator %s", validator.Hex())
		}
		if err := st.tx.SetValidator(ctx, validator, false); err != nil {
			return "", nil, err
		}
		return model.KindValidatorRemoved, model.AddressPayload{Address: validator.Hex(), By: caller.Hex()}, nil
	})
}

func (b *Bridge) SetThreshold(ctx context.Context, threshold uint64, caller common.Address) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, state *model.BridgeState) (string, interface{}, error) {
		if threshold == 0 {
			return "", nil, errors.Wrap(model.ErrInvalidThreshold, "threshold must be at least 1")
		}
		old := state.Threshold
		state.Threshold = threshold
		return model.KindThresholdChanged, model.ChangePayload{
			Field: "threshold",
			Old:   strconv.FormatUint(old, 10),
			New:   strconv.FormatUint(threshold, 10),
			By:    caller.Hex(),
		}, nil
	})
}

func (b *Bridge) Pause(ctx context.Context, caller common.Address) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, state *model.BridgeState) (string, interface{}, error) {
		if state.Paused {
			return "", nil, errors.Wrap(model.ErrInvalidParameter, "already paused")
		}
		state.Paused = true
		return model.KindPaused, model.AddressPayload{By: caller.Hex()}, nil
	})
}

func (b *Bridge) Unpause(ctx context.Context, caller common.Address) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, state *model.BridgeState) (string, interface{}, error) {
		if !state.Paused {
			return "", nil, errors.Wrap(model.ErrInvalidParameter, "not paused")
		}
		state.Paused = false
		return model.KindUnpaused, model.AddressPayload{By: caller.Hex()}, nil
	})
}

func (b *Bridge) policyChange(ctx context.Context, caller common.Address, set func(state *model.BridgeState) (policy.Change, error)) error {
	return b.admin(ctx, caller, func(ctx context.Context, st *txState, state *model.BridgeState) (string, interface{}, error) {
		c, err := set(state)
		if err != nil {
			return "", nil, err
		}
		return model.KindPolicyChanged, model.ChangePayload{Field: c.Field, Old: c.Old, New: c.New, By: caller.Hex()}, nil
	})
}

func (b *Bridge) SetMaxPerTx(ctx context.Context, v *uint256.Int, caller common.Address) error {
	return b.policyChange(ctx, caller, func(state *model.BridgeState) (policy.Change, error) {
		return policy.NewRateLimiter(&state.Limits).SetMax(v)
	})
}

func (b *Bridge) SetMinPerTx(ctx context.Context, v *uint256.Int, caller common.Address) error {
	return b.policyChange(ctx, caller, func(state *model.BridgeState) (policy.Change, error) {
		return policy.NewRateLimiter(&state.Limits).SetMin(v)
	})
}

func (b *Bridge) SetDailyCap(ctx context.Context, v *uint256.Int, caller common.Address) error {
	return b.policyChange(ctx, caller, func(state *model.BridgeState) (policy.Change, error) {
		return policy.NewRateLimiter(&state.Limits).SetDailyCap(v)
	})
}

func (b *Bridge) SetFeeBps(ctx context.Context, bps uint64, caller common.Address) error {
	return b.policyChange(ctx, caller, func(state *model.BridgeState) (policy.Change, error) {
		return policy.NewFees(&state.Fees).SetFeeBps(bps)
	})
}

func (b *Bridge) SetFeeCollector(ctx context.Context, collector, caller common.Address) error {
	return b.policyChange(ctx, caller, func(state *model.BridgeState) (policy.Change, error) {
		return policy.NewFees(&state.Fees).SetFeeCollector(collector)
	})
}

func (b *Bridge) State(ctx context.Context) (*model.BridgeState, error) {
	var out *model.BridgeState
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.BridgeState(ctx)
		return err
	})
	return out, err
}

// Attestation returns the record for id, or model.ErrNotFound if no validator attested it.
func (b *Bridge) Attestation(ctx context.Context, id model.EventID) (*model.AttestationRecord, error) {
	var out *model.AttestationRecord
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.Attestation(ctx, id)
		if err == nil && out == nil {
			err = errors.Wrapf(model.ErrNotFound, "event %s", id.Hex())
		}
		return err
	})
	return out, err
}

func (b *Bridge) HasAttested(ctx context.Context, id model.EventID, validator common.Address) (bool, error) {
	var out bool
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.HasAttested(ctx, id, validator)
		return err
	})
	return out, err
}

func (b *Bridge) IsValidator(ctx context.Context, addr common.Address) (bool, error) {
	var out bool
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.IsValidator(ctx, addr)
		return err
	})
	return out, err
}

func (b *Bridge) Validators(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	err := b.run(ctx, func(ctx context.Context, st *txState) error {
		var err error
		out, err = st.tx.Validators(ctx)
		return err
	})
	return out, err
}
