package policy

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"go-bridge-quorum/model"
)

const (
	// BpsDenominator is the basis point scale.
	BpsDenominator = 10000
	// MaxFeeBps caps the fee at 10%.
	MaxFeeBps = 1000
)

var bpsDenominator = uint256.NewInt(BpsDenominator)

// Fees computes and accumulates transfer fees on the state it wraps.
type Fees struct {
	s *model.FeeState
}

func NewFees(s *model.FeeState) Fees {
	return Fees{s: s}
}

// ComputeFee returns floor(amount*feeBps/10000) and amount minus that fee.
func (f Fees) ComputeFee(amount *uint256.Int) (fee, net *uint256.Int, err error) {
	return ComputeFee(amount, f.s.FeeBps)
}

func ComputeFee(amount *uint256.Int, feeBps uint64) (fee, net *uint256.Int, err error) {
	scaled, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(feeBps))
	if overflow {
		return nil, nil, errors.Wrapf(model.ErrOverflow, "fee on %s", amount.Dec())
	}
	fee = scaled.Div(scaled, bpsDenominator)
	net = new(uint256.Int).Sub(amount, fee)
	return fee, net, nil
}

// Accumulate adds fee to the collected total.
func (f Fees) Accumulate(fee *uint256.Int) error {
	total, overflow := new(uint256.Int).AddOverflow(&f.s.AccumulatedFees, fee)
	if overflow {
		return errors.Wrap(model.ErrOverflow, "accumulated fees")
	}
	f.s.AccumulatedFees.Set(total)
	return nil
}

// Drain zeroes the accumulator and returns what it held.
func (f Fees) Drain() (*uint256.Int, error) {
	if f.s.AccumulatedFees.IsZero() {
		return nil, model.ErrNoFees
	}
	out := f.s.AccumulatedFees.Clone()
	f.s.AccumulatedFees.Clear()
	return out, nil
}

func (f Fees) SetFeeBps(bps uint64) (Change, error) {
	if bps > MaxFeeBps {
		return Change{}, errors.Wrapf(model.ErrFeeTooHigh, "%d", bps)
	}
	c := Change{
		Field: "feeBps",
		Old:   strconv.FormatUint(f.s.FeeBps, 10),
		New:   strconv.FormatUint(bps, 10),
	}
	f.s.FeeBps = bps
	return c, nil
}

func (f Fees) SetFeeCollector(a common.Address) (Change, error) {
	if a == (common.Address{}) {
		return Change{}, errors.Wrap(model.ErrZeroAddress, "fee collector")
	}
	c := Change{Field: "feeCollector", Old: f.s.FeeCollector.Hex(), New: a.Hex()}
	f.s.FeeCollector = a
	return c, nil
}
