package policy_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"go-bridge-quorum/model"
	"go-bridge-quorum/policy"
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func TestComputeFee(t *testing.T) {
	amounts := []*uint256.Int{
		uint256.NewInt(0),
		uint256.NewInt(1),
		uint256.NewInt(199),
		uint256.NewInt(10001),
		ether(20000),
		new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 240), uint256.NewInt(7)),
	}
	for _, bps := range []uint64{0, 1, 50, 333, 999, 1000} {
		for _, amount := range amounts {
			fee, net, err := policy.ComputeFee(amount, bps)
			require.NoError(t, err)

			sum := new(uint256.Int).Add(fee, net)
			require.True(t, sum.Eq(amount), "fee+net != amount for %s @ %d", amount.Dec(), bps)

			want := new(big.Int).Mul(amount.ToBig(), new(big.Int).SetUint64(bps))
			want.Quo(want, big.NewInt(policy.BpsDenominator))
			require.Equal(t, want.String(), fee.Dec())
		}
	}
}

func TestComputeFeeScenario(t *testing.T) {
	fee, net, err := policy.ComputeFee(ether(20000), 50)
	require.NoError(t, err)
	require.True(t, fee.Eq(ether(100)))
	require.True(t, net.Eq(ether(19900)))
}

func TestComputeFeeOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, _, err := policy.ComputeFee(max, 2)
	require.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestRateLimiter(t *testing.T) {
	var state model.RateLimitState

	testCases := []struct {
		name     string
		malleate func()
		amount   *uint256.Int
		deposit  bool
		expError error
		expTotal *uint256.Int
	}{
		{"within bounds", func() {}, ether(10), true, nil, ether(10)},
		{"exceeds max", func() {}, ether(101), true, model.ErrExceedsMax, ether(0)},
		{"below min on deposit", func() {}, uint256.NewInt(5), true, model.ErrBelowMin, ether(0)},
		{"below min allowed on withdrawal", func() {}, uint256.NewInt(5), false, nil, uint256.NewInt(5)},
		{
			"pushes daily total over cap",
			func() { state.DailyTotal.Set(ether(950)) },
			ether(60), false, model.ErrExceedsDailyCap, ether(950),
		},
		{
			"exactly reaches cap",
			func() { state.DailyTotal.Set(ether(950)) },
			ether(50), true, nil, ether(1000),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			state = model.RateLimitState{}
			state.MaxPerTx.Set(ether(100))
			state.MinPerTx.Set(uint256.NewInt(10))
			state.DailyCap.Set(ether(1000))
			tc.malleate()

			limiter := policy.NewRateLimiter(&state)
			var err error
			if tc.deposit {
				err = limiter.CheckAndReserve(tc.amount)
			} else {
				err = limiter.CheckAndReserveWithdrawal(tc.amount)
			}
			if tc.expError != nil {
				require.ErrorIs(t, err, tc.expError)
				require.ErrorIs(t, err, model.ErrLimitExceeded)
			} else {
				require.NoError(t, err)
			}
			require.True(t, state.DailyTotal.Eq(tc.expTotal), "daily total %s", state.DailyTotal.Dec())
		})
	}
}

func TestResetWindowIfExpired(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	state := model.RateLimitState{WindowStart: start}
	state.DailyTotal.Set(ether(5))
	limiter := policy.NewRateLimiter(&state)

	require.False(t, limiter.ResetWindowIfExpired(start.Add(policy.Window-time.Second)))
	require.True(t, state.DailyTotal.Eq(ether(5)))

	now := start.Add(policy.Window + time.Hour)
	require.True(t, limiter.ResetWindowIfExpired(now))
	require.True(t, state.DailyTotal.IsZero())
	require.Equal(t, now, state.WindowStart)

	// the window drifts with the first observer, so a second call at the same instant is a no-op
	require.False(t, limiter.ResetWindowIfExpired(now))
	require.Equal(t, now, state.WindowStart)
}

func TestSetters(t *testing.T) {
	var limits model.RateLimitState
	limits.MaxPerTx.Set(ether(100))
	limiter := policy.NewRateLimiter(&limits)

	c, err := limiter.SetMin(ether(1))
	require.NoError(t, err)
	require.Equal(t, policy.Change{Field: "minPerTx", Old: "0", New: ether(1).Dec()}, c)

	_, err = limiter.SetMax(uint256.NewInt(1))
	require.ErrorIs(t, err, model.ErrInvalidParameter)

	_, err = limiter.SetDailyCap(uint256.NewInt(0))
	require.ErrorIs(t, err, model.ErrInvalidParameter)

	var fees model.FeeState
	f := policy.NewFees(&fees)
	_, err = f.SetFeeBps(1001)
	require.ErrorIs(t, err, model.ErrFeeTooHigh)
	c, err = f.SetFeeBps(1000)
	require.NoError(t, err)
	require.Equal(t, "1000", c.New)

	_, err = f.Drain()
	require.ErrorIs(t, err, model.ErrNoFees)
	require.NoError(t, f.Accumulate(uint256.NewInt(7)))
	drained, err := f.Drain()
	require.NoError(t, err)
	require.Equal(t, uint64(7), drained.Uint64())
	require.True(t, fees.AccumulatedFees.IsZero())
}
